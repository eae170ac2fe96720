// Package prompt builds the model prompt for a chat turn: persona,
// referenced file contents, and message history, fitted into a token
// budget. Output has three regions in fixed order (persona,
// file_context, history) joined by blank lines.
package prompt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/internal/chat"
	"github.com/quanhua92/buildscale-ai-sub000/internal/observability"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

const (
	// DefaultBudget is the token budget used when Input leaves it zero.
	DefaultBudget = 4000

	// historyWindow caps how many messages one assembly reads; budget
	// fitting truncates further.
	historyWindow = 1000

	// sepTokens accounts for the "\n\n" joining fragments, so fitting
	// at the token budget keeps the character bound.
	sepTokens = 1
)

// historyShare is the slice of the budget held back from file fitting
// while history remains to be placed, so one large file cannot push the
// conversation out of the prompt entirely.
const historyShare = 4

// FileSource is the slice of the filesystem the assembler reads.
// *vfs.Service satisfies it.
type FileSource interface {
	ResolveID(ctx context.Context, workspaceID, fileID string) (*models.File, error)
	LatestContent(ctx context.Context, file *models.File) (string, int64, error)
	ReadVersion(ctx context.Context, file *models.File, versionID int64) (string, error)
}

// Input names the chat to assemble for.
type Input struct {
	WorkspaceID string
	ChatFileID  string

	// Persona is the essential system fragment; always present in the
	// output.
	Persona string

	// Budget is the token budget; DefaultBudget when <= 0. Tokens are
	// estimated as ceil(chars/4), and output never exceeds budget*5
	// characters.
	Budget int
}

// Assembler produces prompts from chat state.
type Assembler struct {
	messages chat.Store
	files    FileSource
	logger   *observability.Logger
}

func NewAssembler(messages chat.Store, files FileSource, logger *observability.Logger) *Assembler {
	return &Assembler{messages: messages, files: files, logger: logger}
}

// fileFragment is one resolved attachment, keyed for dedupe.
type fileFragment struct {
	fileID    string
	versionID int64
	text      string

	// seq/pos locate the fragment's latest occurrence: message sequence
	// and attachment position within that message. Newer occurrences
	// win both dedupe and fit order.
	seq int64
	pos int
}

// Assemble builds the prompt for one turn.
func (a *Assembler) Assemble(ctx context.Context, in Input) (string, error) {
	budget := in.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	history, err := a.messages.List(ctx, in.WorkspaceID, in.ChatFileID, chat.ListOptions{Limit: historyWindow})
	if err != nil {
		return "", err
	}

	fragments := a.collectFiles(ctx, in.WorkspaceID, history)
	lines := renderHistory(history)

	return fit(in.Persona, fragments, lines, budget), nil
}

// collectFiles resolves every attachment in insertion order, deduped by
// (file id, version id) keeping the latest occurrence. Attachments that
// no longer resolve inside the chat's workspace are dropped without
// failing the turn.
func (a *Assembler) collectFiles(ctx context.Context, workspaceID string, history []*models.ChatMessage) []fileFragment {
	byKey := make(map[string]int)
	var fragments []fileFragment

	for _, msg := range history {
		for i, att := range msg.Metadata.Attachments {
			frag, ok := a.resolveAttachment(ctx, workspaceID, att)
			if !ok {
				continue
			}
			frag.seq = msg.Seq
			frag.pos = i

			key := fmt.Sprintf("%s@%d", frag.fileID, frag.versionID)
			if idx, seen := byKey[key]; seen {
				fragments[idx].seq = frag.seq
				fragments[idx].pos = frag.pos
				continue
			}
			byKey[key] = len(fragments)
			fragments = append(fragments, frag)
		}
	}
	return fragments
}

func (a *Assembler) resolveAttachment(ctx context.Context, workspaceID string, att models.Attachment) (fileFragment, bool) {
	file, err := a.files.ResolveID(ctx, workspaceID, att.FileID)
	if err != nil {
		if !apperr.IsKind(err, apperr.KindNotFound) {
			a.logger.Warn(ctx, "attachment resolution failed",
				"workspace_id", workspaceID, "file_id", att.FileID, "error", err)
		}
		return fileFragment{}, false
	}
	if file.IsFolder() {
		return fileFragment{}, false
	}

	var content string
	var versionID int64
	if att.VersionID != nil {
		versionID = *att.VersionID
		content, err = a.files.ReadVersion(ctx, file, versionID)
	} else {
		content, versionID, err = a.files.LatestContent(ctx, file)
	}
	if err != nil {
		if !apperr.IsKind(err, apperr.KindNotFound) {
			a.logger.Warn(ctx, "attachment read failed",
				"workspace_id", workspaceID, "file_id", att.FileID, "error", err)
		}
		return fileFragment{}, false
	}

	return fileFragment{
		fileID:    att.FileID,
		versionID: versionID,
		text:      "<file_context>File: " + file.Path + "\n" + content + "</file_context>",
	}, true
}

// renderHistory turns messages into "Role: content" lines in insertion
// order.
func renderHistory(history []*models.ChatMessage) []string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		lines = append(lines, roleLabel(msg.Role)+": "+msg.Content)
	}
	return lines
}

func roleLabel(role models.MessageRole) string {
	switch role {
	case models.RoleAssistant:
		return "Assistant"
	case models.RoleSystem:
		return "System"
	case models.RoleTool:
		return "Tool"
	default:
		return "User"
	}
}

// tokens estimates ceil(len/4).
func tokens(s string) int {
	return (len(s) + 3) / 4
}

// fit assembles the final prompt. The persona is always present. File
// fragments are placed newest first into the budget left after a
// history reservation; when none fits whole, the newest is clipped so
// referenced content is never absent outright. History takes whatever
// remains, truncated from the oldest end.
func fit(persona string, fragments []fileFragment, lines []string, budget int) string {
	persona = clipToBoundary(persona, budget*5)
	used := tokens(persona)

	// Newest occurrence first; position in the message breaks ties.
	sort.SliceStable(fragments, func(i, j int) bool {
		if fragments[i].seq != fragments[j].seq {
			return fragments[i].seq > fragments[j].seq
		}
		return fragments[i].pos > fragments[j].pos
	})

	fileLimit := budget
	if len(lines) > 0 {
		fileLimit = budget - budget/historyShare
	}

	var included []fileFragment
	for _, frag := range fragments {
		cost := tokens(frag.text) + sepTokens
		if used+cost <= fileLimit {
			included = append(included, frag)
			used += cost
			continue
		}
		if len(included) > 0 {
			continue
		}
		// Nothing placed yet: clip the newest fragment into the space
		// available so the prompt still carries file context.
		clipped, ok := clipFragment(frag.text, fileLimit-used-sepTokens)
		if ok {
			frag.text = clipped
			included = append(included, frag)
			used += tokens(clipped) + sepTokens
		}
	}

	// Back to chat order for emission.
	sort.SliceStable(included, func(i, j int) bool {
		if included[i].seq != included[j].seq {
			return included[i].seq < included[j].seq
		}
		return included[i].pos < included[j].pos
	})

	historyText := fitHistory(lines, budget-used)

	regions := make([]string, 0, 2+len(included))
	regions = append(regions, persona)
	for _, frag := range included {
		regions = append(regions, frag.text)
	}
	if historyText != "" {
		regions = append(regions, historyText)
	}
	return strings.Join(regions, "\n\n")
}

const fragmentClose = "</file_context>"

// clipFragment truncates a file fragment's content to maxTokens,
// keeping the envelope intact. Reports false when not even the first
// content line fits.
func clipFragment(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return "", false
	}
	maxLen := maxTokens * 4
	if len(text) <= maxLen {
		return text, true
	}
	keep := maxLen - len(fragmentClose)
	// Never cut into the "<file_context>File: {path}" header line.
	header := strings.IndexByte(text, '\n')
	if header < 0 || keep <= header {
		return "", false
	}
	return clipToBoundary(text, keep) + fragmentClose, true
}

// clipToBoundary truncates s to at most n bytes without splitting a
// rune.
func clipToBoundary(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// fitHistory joins lines newest-last, dropping from the oldest end
// until the region fits the remaining budget.
func fitHistory(lines []string, remaining int) string {
	if len(lines) == 0 || remaining <= 0 {
		return ""
	}

	// Walk from the newest line backwards, accumulating until the next
	// line would overflow.
	total := sepTokens
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		cost := tokens(lines[i]) + 1 // joining newline
		if total+cost > remaining {
			break
		}
		total += cost
		start = i
	}
	if start == len(lines) {
		return ""
	}
	return strings.Join(lines[start:], "\n")
}
