package agent

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/quanhua92/buildscale-ai-sub000/internal/llm"
	"github.com/quanhua92/buildscale-ai-sub000/internal/prompt"
	"github.com/quanhua92/buildscale-ai-sub000/internal/tools"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// planAddendum is appended to the persona while the session is in plan
// mode so the model works the handshake instead of editing files.
const planAddendum = "You are in plan mode. Write your proposal into a .plan file, " +
	"present it with ask_user, and call exit_plan_mode once the user approves. " +
	"Until then every other file is read-only."

// taskLimit bounds the current_task column; it is a label, not a log.
const taskLimit = 120

// pumped is one stream read relayed into the turn select.
type pumped struct {
	item llm.Item
	err  error
}

// runTurn drives one complete interaction: Running, prompt assembly,
// the gateway stream, tool dispatch, and the terminal transition. It
// returns the interactions that arrived in the mailbox while it ran,
// still in order.
func (a *Actor) runTurn(cmd ProcessInteraction) (deferred []ProcessInteraction) {
	started := time.Now()

	sess, err := a.deps.Sessions.GetByChatFile(a.base, a.chatFileID)
	if err != nil {
		a.deps.Logger.Warn(a.base, "turn aborted: session lookup failed",
			"chat_file_id", a.chatFileID, "error", err)
		a.publish(models.NewErrorEvent(a.chatFileID, err.Error()))
		return nil
	}

	running, err := a.deps.Sessions.UpdateStatus(a.base, sess.ID, models.StatusRunning, nil)
	if err != nil {
		a.deps.Logger.Warn(a.base, "turn aborted: cannot enter running",
			"chat_file_id", a.chatFileID, "session_id", sess.ID, "error", err)
		a.publish(models.NewErrorEvent(a.chatFileID, err.Error()))
		return nil
	}
	sess = running
	if hbErr := a.deps.Sessions.Heartbeat(a.base, sess.ID); hbErr != nil {
		a.deps.Logger.Warn(a.base, "heartbeat failed", "session_id", sess.ID, "error", hbErr)
	}

	userID := cmd.UserID
	if userID == "" {
		userID = sess.UserID
	}

	userMsg, err := a.deps.Messages.LatestUserMessage(a.base, a.workspaceID, a.chatFileID)
	if err != nil {
		a.failTurn(sess, "chat has no user message to process")
		return nil
	}
	task := clipTask(userMsg.Content)
	if taskErr := a.deps.Sessions.UpdateTask(a.base, sess.ID, &task); taskErr != nil {
		a.deps.Logger.Warn(a.base, "task update failed", "session_id", sess.ID, "error", taskErr)
	}

	persona := a.deps.Config.Persona
	if sess.Mode == models.ModePlan {
		persona += "\n\n" + planAddendum
	}
	system, err := a.deps.Assembler.Assemble(a.base, prompt.Input{
		WorkspaceID: a.workspaceID,
		ChatFileID:  a.chatFileID,
		Persona:     persona,
		Budget:      a.deps.Config.TokenBudget,
	})
	if err != nil {
		a.failTurn(sess, "prompt assembly failed: "+err.Error())
		return nil
	}

	turnCtx, cancelTurn := context.WithCancel(a.base)
	defer cancelTurn()

	stream, err := a.deps.Gateway.ChatStream(turnCtx, llm.Request{
		Model:  sess.Model,
		System: system,
		Prompt: userMsg.Content,
		Tools:  a.deps.Catalog.Defs(),
	})
	if err != nil {
		a.failTurn(sess, err.Error())
		return nil
	}
	defer stream.Close()

	items := make(chan pumped, 1)
	go pumpStream(turnCtx, stream, items)

	heartbeat := time.NewTicker(a.deps.Config.HeartbeatInterval)
	defer heartbeat.Stop()

	var (
		partial     []byte
		toolRecords []models.ToolCallRecord
	)
	toolCfg := models.ToolConfig{PlanMode: sess.Mode == models.ModePlan}

	for {
		select {
		case mb := <-a.mailbox:
			switch c := mb.(type) {
			case Cancel:
				respond(c.Responder, nil)
				cancelTurn()
				a.finishCancelled(sess, c.Reason, string(partial))
				return deferred
			case ProcessInteraction:
				deferred = append(deferred, c)
			case Ping:
			}

		case <-heartbeat.C:
			if hbErr := a.deps.Sessions.Heartbeat(a.base, sess.ID); hbErr != nil {
				a.deps.Logger.Warn(a.base, "heartbeat failed", "session_id", sess.ID, "error", hbErr)
			}

		case p := <-items:
			if p.err != nil {
				// The pump only errors when the turn context ended or the
				// provider stream broke without a terminal item.
				if a.base.Err() != nil {
					cancelTurn()
					a.finishCancelled(sess, "server shutting down", string(partial))
					return deferred
				}
				a.failTurn(sess, "model stream ended unexpectedly: "+p.err.Error())
				return deferred
			}

			switch it := p.item.(type) {
			case llm.TextChunk:
				partial = append(partial, it.Text...)
				a.publish(models.NewChunkEvent(a.chatFileID, it.Text))

			case llm.ToolCallRequest:
				inv := tools.Invocation{WorkspaceID: a.workspaceID, UserID: userID, Config: toolCfg}
				record, resp := a.execTool(inv, it)
				toolRecords = append(toolRecords, record)

				if it.Name == "ask_user" && resp.Success {
					a.pauseTurn(sess, userID, string(partial), toolRecords)
					return deferred
				}
				if it.Name == "exit_plan_mode" && resp.Success {
					a.enterBuildMode(sess, &toolCfg, it.Args)
				}

				// A cancel that landed while the tool ran takes effect now,
				// before the result feeds the next model round.
				var cancelled *Cancel
				cancelled, deferred = a.drainControl(deferred)
				if cancelled != nil {
					cancelTurn()
					a.finishCancelled(sess, cancelled.Reason, string(partial))
					return deferred
				}

				if pushErr := stream.Push(turnCtx, llm.ToolCallResult{
					ID:      it.ID,
					Name:    it.Name,
					Result:  record.Result,
					IsError: record.Error != "",
				}); pushErr != nil {
					// The stream already produced its terminal item; the
					// next read handles it.
					a.deps.Logger.Debug(a.base, "tool result push failed",
						"chat_file_id", a.chatFileID, "tool", it.Name, "error", pushErr)
				}

			case llm.ProviderError:
				a.failTurn(sess, it.Message)
				return deferred

			case llm.Final:
				a.finishCompleted(sess, userID, string(partial), toolRecords, it.Usage, started)
				return deferred
			}
		}
	}
}

// pumpStream relays stream items into the turn select so mailbox
// commands and heartbeats interleave with model output.
func pumpStream(ctx context.Context, stream *llm.Stream, out chan<- pumped) {
	for {
		item, err := stream.Next(ctx)
		select {
		case out <- pumped{item: item, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// drainControl empties the mailbox without blocking. The first Cancel
// wins and is acknowledged; interactions keep their order for later.
func (a *Actor) drainControl(deferred []ProcessInteraction) (*Cancel, []ProcessInteraction) {
	var cancelled *Cancel
	for {
		select {
		case mb := <-a.mailbox:
			switch c := mb.(type) {
			case Cancel:
				respond(c.Responder, nil)
				if cancelled == nil {
					cancelled = &c
				}
			case ProcessInteraction:
				deferred = append(deferred, c)
			case Ping:
			}
		default:
			return cancelled, deferred
		}
	}
}

// execTool runs one catalog call and publishes its lifecycle events.
// Tools execute on the actor's base context: a turn cancellation never
// preempts a tool that has started.
func (a *Actor) execTool(inv tools.Invocation, call llm.ToolCallRequest) (models.ToolCallRecord, *tools.Response) {
	a.publish(models.NewToolStartEvent(a.chatFileID, call.Name, call.Args))

	started := time.Now()
	resp := a.deps.Catalog.Execute(a.base, inv, call.Name, call.Args)
	status := "ok"
	if !resp.Success {
		status = "error"
	}
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordToolExecution(call.Name, status, time.Since(started).Seconds())
	}

	result, errMsg := renderToolResponse(resp)
	a.publish(models.NewToolEndEvent(a.chatFileID, call.Name, result, errMsg))

	return models.ToolCallRecord{
		ID:     call.ID,
		Name:   call.Name,
		Args:   call.Args,
		Result: result,
		Error:  errMsg,
	}, resp
}

// renderToolResponse flattens a tool response into the string fed back
// to the model and recorded on the message.
func renderToolResponse(resp *tools.Response) (result, errMsg string) {
	if !resp.Success {
		return "", resp.Error
	}
	encoded, err := json.Marshal(resp.Result)
	if err != nil {
		return "", "encode tool result: " + err.Error()
	}
	return string(encoded), ""
}

// enterBuildMode flips the session out of plan mode after a successful
// exit_plan_mode call and remembers the approved plan for the rest of
// the turn.
func (a *Actor) enterBuildMode(sess *models.AgentSession, toolCfg *models.ToolConfig, args json.RawMessage) {
	var in struct {
		PlanPath string `json:"plan_path"`
	}
	_ = json.Unmarshal(args, &in)

	mode := models.ModeBuild
	if err := a.deps.Sessions.UpdateMetadata(a.base, sess.ID, nil, &mode, nil); err != nil {
		a.deps.Logger.Warn(a.base, "mode update failed", "session_id", sess.ID, "error", err)
	}
	sess.Mode = mode
	toolCfg.PlanMode = false
	toolCfg.ActivePlanPath = in.PlanPath

	if in.PlanPath != "" {
		task := "executing plan " + in.PlanPath
		if err := a.deps.Sessions.UpdateTask(a.base, sess.ID, &task); err != nil {
			a.deps.Logger.Warn(a.base, "task update failed", "session_id", sess.ID, "error", err)
		}
	}
}

// pauseTurn suspends the session on a successful ask_user call. The
// partial response and the question's tool record are persisted so the
// next turn's prompt carries them; the turn ends without Done.
func (a *Actor) pauseTurn(sess *models.AgentSession, userID, partial string, toolRecords []models.ToolCallRecord) {
	if err := a.persistAssistant(sess, partial, toolRecords, nil); err != nil {
		a.failTurn(sess, "persist paused response: "+err.Error())
		return
	}
	if _, err := a.deps.Sessions.UpdateStatus(a.base, sess.ID, models.StatusPaused, nil); err != nil {
		a.deps.Logger.Warn(a.base, "pause transition failed", "session_id", sess.ID, "error", err)
	}
	a.deps.Logger.Debug(a.base, "turn paused awaiting user",
		"chat_file_id", a.chatFileID, "session_id", sess.ID, "user_id", userID)
}

// finishCompleted persists the assistant message, settles the session
// back to Idle, and emits Done.
func (a *Actor) finishCompleted(sess *models.AgentSession, userID, partial string, toolRecords []models.ToolCallRecord, usage models.UsageRecord, started time.Time) {
	if err := a.persistAssistant(sess, partial, toolRecords, &usage); err != nil {
		a.failTurn(sess, "persist assistant message: "+err.Error())
		return
	}

	if _, err := a.deps.Sessions.UpdateStatus(a.base, sess.ID, models.StatusCompleted, nil); err != nil {
		a.deps.Logger.Warn(a.base, "completion transition failed", "session_id", sess.ID, "error", err)
	} else if _, err := a.deps.Sessions.GetOrCreate(a.base, &models.AgentSession{
		ID:          uuid.NewString(),
		WorkspaceID: sess.WorkspaceID,
		ChatFileID:  sess.ChatFileID,
		UserID:      userID,
		AgentType:   sess.AgentType,
		Model:       sess.Model,
		Mode:        sess.Mode,
	}); err != nil {
		a.deps.Logger.Warn(a.base, "idle reset failed", "session_id", sess.ID, "error", err)
	}

	a.publish(models.NewDoneEvent(a.chatFileID, usage))
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordTurn(string(sess.AgentType), time.Since(started).Seconds())
	}
}

// finishCancelled settles a cancelled turn. Whatever streamed before
// the cancel rides on the Stopped event; nothing is persisted and
// nothing persisted is rolled back.
func (a *Actor) finishCancelled(sess *models.AgentSession, reason, partial string) {
	if reason == "" {
		reason = "cancelled by user"
	}
	if _, err := a.deps.Sessions.UpdateStatus(a.base, sess.ID, models.StatusCancelled, &reason); err != nil {
		a.deps.Logger.Warn(a.base, "cancel transition failed", "session_id", sess.ID, "error", err)
	}
	a.publish(models.NewStoppedEvent(a.chatFileID, reason, partial))
}

// failTurn moves the session to Error and reports the failure on the
// event stream.
func (a *Actor) failTurn(sess *models.AgentSession, message string) {
	if _, err := a.deps.Sessions.UpdateStatus(a.base, sess.ID, models.StatusError, &message); err != nil {
		a.deps.Logger.Warn(a.base, "error transition failed", "session_id", sess.ID, "error", err)
	}
	a.publish(models.NewErrorEvent(a.chatFileID, message))
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordError("agent", "turn")
	}
}

// persistAssistant appends the turn's assistant message with its tool
// records and usage.
func (a *Actor) persistAssistant(sess *models.AgentSession, content string, toolRecords []models.ToolCallRecord, usage *models.UsageRecord) error {
	return a.deps.Messages.Append(a.base, &models.ChatMessage{
		ID:          uuid.NewString(),
		WorkspaceID: sess.WorkspaceID,
		ChatFileID:  sess.ChatFileID,
		Role:        models.RoleAssistant,
		Content:     content,
		Metadata: models.MessageMetadata{
			ToolCalls: toolRecords,
			Usage:     usage,
		},
	})
}

// clipTask shortens a user message into a task label.
func clipTask(s string) string {
	if len(s) <= taskLimit {
		return s
	}
	cut := taskLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
