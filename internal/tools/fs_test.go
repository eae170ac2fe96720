package tools

import (
	"fmt"
	"strings"
	"testing"

	"github.com/quanhua92/buildscale-ai-sub000/internal/vfs"
)

func TestLs(t *testing.T) {
	f := newFixture(t)
	inv := testInv()
	f.seed(t, inv.WorkspaceID, "/docs/guide.md", "hello")
	f.seed(t, inv.WorkspaceID, "/docs/api/ref.md", "ref")
	f.seed(t, inv.WorkspaceID, "/readme.md", "top")

	res := resultMap(t, f.exec(t, inv, "ls", `{"path":"/docs"}`))
	if res["count"].(float64) != 2 {
		t.Fatalf("count = %v, want 2 (api folder and guide)", res["count"])
	}

	res = resultMap(t, f.exec(t, inv, "ls", `{"path":"/docs","recursive":true}`))
	if res["count"].(float64) != 3 {
		t.Fatalf("recursive count = %v, want 3", res["count"])
	}

	resp := f.exec(t, inv, "ls", `{"path":"/readme.md"}`)
	if resp.Success {
		t.Fatal("expected failure listing a document")
	}
}

func TestReadWholeFile(t *testing.T) {
	f := newFixture(t)
	inv := testInv()
	content := "line one\nline two\nline three"
	f.seed(t, inv.WorkspaceID, "/notes.md", content)

	res := resultMap(t, f.exec(t, inv, "read", `{"path":"/notes.md"}`))
	if res["content"] != content {
		t.Errorf("content = %q", res["content"])
	}
	if res["total_lines"].(float64) != 3 {
		t.Errorf("total_lines = %v, want 3", res["total_lines"])
	}
	if res["hash"] != vfs.HashContent(content) {
		t.Errorf("hash = %v", res["hash"])
	}
	if res["start_line"].(float64) != 1 {
		t.Errorf("start_line = %v, want 1", res["start_line"])
	}
}

func TestReadLineSlices(t *testing.T) {
	f := newFixture(t)
	inv := testInv()
	f.seed(t, inv.WorkspaceID, "/list.txt", "l1\nl2\nl3\nl4\nl5")

	cases := []struct {
		name    string
		args    string
		content string
		start   float64
	}{
		{"offset", `{"path":"/list.txt","offset":3}`, "l3\nl4\nl5", 3},
		{"offset and limit", `{"path":"/list.txt","offset":2,"limit":2}`, "l2\nl3", 2},
		{"limit only", `{"path":"/list.txt","limit":2}`, "l1\nl2", 1},
		{"negative offset", `{"path":"/list.txt","offset":-2}`, "l4\nl5", 4},
		{"negative past start", `{"path":"/list.txt","offset":-10}`, "l1\nl2\nl3\nl4\nl5", 1},
		{"offset past end", `{"path":"/list.txt","offset":9}`, "", 9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := resultMap(t, f.exec(t, inv, "read", tc.args))
			if res["content"] != tc.content {
				t.Errorf("content = %q, want %q", res["content"], tc.content)
			}
			if res["start_line"].(float64) != tc.start {
				t.Errorf("start_line = %v, want %v", res["start_line"], tc.start)
			}
			if res["total_lines"].(float64) != 5 {
				t.Errorf("total_lines = %v, want 5", res["total_lines"])
			}
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	f := newFixture(t)
	resp := f.exec(t, testInv(), "read", `{"path":"/absent.md"}`)
	if resp.Success {
		t.Fatal("expected failure for a missing file")
	}
	if !strings.Contains(resp.Error, "not found") {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestReadMultipleFiles(t *testing.T) {
	f := newFixture(t)
	inv := testInv()
	f.seed(t, inv.WorkspaceID, "/a.md", "alpha")
	f.seed(t, inv.WorkspaceID, "/b.md", "beta")

	resp := f.exec(t, inv, "read_multiple_files", `{"paths":["/a.md","/missing.md","/b.md"]}`)
	res := resultMap(t, resp)
	files := res["files"].([]any)
	if len(files) != 3 {
		t.Fatalf("files = %d entries, want 3", len(files))
	}

	first := files[0].(map[string]any)
	if first["success"] != true || first["content"] != "alpha" {
		t.Errorf("first entry = %v", first)
	}
	second := files[1].(map[string]any)
	if second["success"] == true {
		t.Error("missing file should fail its element")
	}
	if second["error"] == nil {
		t.Error("missing file should carry an error record")
	}
	third := files[2].(map[string]any)
	if third["success"] != true || third["content"] != "beta" {
		t.Errorf("third entry = %v", third)
	}
}

func TestReadMultipleFilesCap(t *testing.T) {
	f := newFixture(t)
	paths := make([]string, maxBatchFiles+1)
	for i := range paths {
		paths[i] = fmt.Sprintf("\"/f%d.md\"", i)
	}
	args := `{"paths":[` + strings.Join(paths, ",") + `]}`
	resp := f.exec(t, testInv(), "read_multiple_files", args)
	if resp.Success {
		t.Fatal("expected cap failure")
	}
	if !strings.Contains(resp.Error, "at most 20") {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestCatFormatting(t *testing.T) {
	f := newFixture(t)
	inv := testInv()
	f.seed(t, inv.WorkspaceID, "/a.txt", "one\ttab\ntwo")
	f.seed(t, inv.WorkspaceID, "/b.txt", "bee")

	t.Run("plain concatenation", func(t *testing.T) {
		res := resultMap(t, f.exec(t, inv, "cat", `{"paths":["/a.txt","/b.txt"]}`))
		if res["content"] != "one\ttab\ntwo\nbee\n" {
			t.Errorf("content = %q", res["content"])
		}
	})

	t.Run("headers numbers ends tabs", func(t *testing.T) {
		res := resultMap(t, f.exec(t, inv, "cat",
			`{"paths":["/a.txt"],"show_headers":true,"number_lines":true,"show_ends":true,"show_tabs":true}`))
		want := "==> /a.txt <==\n     1\tone^Itab$\n     2\ttwo$\n"
		if res["content"] != want {
			t.Errorf("content = %q, want %q", res["content"], want)
		}
	})

	t.Run("offset keeps true line numbers", func(t *testing.T) {
		res := resultMap(t, f.exec(t, inv, "cat",
			`{"paths":["/a.txt"],"number_lines":true,"offset":2}`))
		if res["content"] != "     2\ttwo\n" {
			t.Errorf("content = %q", res["content"])
		}
	})

	t.Run("squeeze blank", func(t *testing.T) {
		f.seed(t, inv.WorkspaceID, "/gaps.txt", "x\n\n\n\ny")
		res := resultMap(t, f.exec(t, inv, "cat", `{"paths":["/gaps.txt"],"squeeze_blank":true}`))
		if res["content"] != "x\n\ny\n" {
			t.Errorf("content = %q", res["content"])
		}
	})

	t.Run("per element errors", func(t *testing.T) {
		res := resultMap(t, f.exec(t, inv, "cat", `{"paths":["/a.txt","/nope.txt"]}`))
		files := res["files"].([]any)
		if len(files) != 2 {
			t.Fatalf("files = %d, want 2", len(files))
		}
		bad := files[1].(map[string]any)
		if bad["success"] == true || bad["error"] == nil {
			t.Errorf("missing file entry = %v", bad)
		}
		if !strings.Contains(res["content"].(string), "one\ttab") {
			t.Error("successful file should still be in content")
		}
	})

	t.Run("file cap", func(t *testing.T) {
		paths := make([]string, maxBatchFiles+1)
		for i := range paths {
			paths[i] = fmt.Sprintf("\"/f%d.md\"", i)
		}
		resp := f.exec(t, inv, "cat", `{"paths":[`+strings.Join(paths, ",")+`]}`)
		if resp.Success {
			t.Fatal("expected cap failure")
		}
	})
}

func TestWriteCreatesAndVersions(t *testing.T) {
	f := newFixture(t)
	inv := testInv()

	res := resultMap(t, f.exec(t, inv, "write", `{"path":"/deep/nested/doc.md","content":"first"}`))
	if res["path"] != "/deep/nested/doc.md" {
		t.Errorf("path = %v", res["path"])
	}
	if res["version_id"].(float64) <= 0 {
		t.Errorf("version_id = %v", res["version_id"])
	}
	firstVersion := res["version_id"].(float64)

	res = resultMap(t, f.exec(t, inv, "write", `{"path":"/deep/nested/doc.md","content":"second"}`))
	if res["version_id"].(float64) <= firstVersion {
		t.Errorf("second write version_id = %v, want > %v", res["version_id"], firstVersion)
	}

	// Parent folders were created on the way.
	lsRes := resultMap(t, f.exec(t, inv, "ls", `{"path":"/deep"}`))
	if lsRes["count"].(float64) != 1 {
		t.Errorf("ls /deep count = %v", lsRes["count"])
	}
}

func TestEditReplaceAndInsert(t *testing.T) {
	f := newFixture(t)
	inv := testInv()
	f.seed(t, inv.WorkspaceID, "/doc.md", "alpha\nbeta\ngamma")

	res := resultMap(t, f.exec(t, inv, "edit", `{"path":"/doc.md","old":"beta","new":"BETA"}`))
	if res["hash"] != vfs.HashContent("alpha\nBETA\ngamma") {
		t.Errorf("hash after replace = %v", res["hash"])
	}

	resultMap(t, f.exec(t, inv, "edit", `{"path":"/doc.md","insert_line":0,"insert_content":"title"}`))
	read := resultMap(t, f.exec(t, inv, "read", `{"path":"/doc.md"}`))
	if read["content"] != "title\nalpha\nBETA\ngamma" {
		t.Errorf("content after insert = %q", read["content"])
	}
}

func TestEditArgumentShape(t *testing.T) {
	f := newFixture(t)
	inv := testInv()
	f.seed(t, inv.WorkspaceID, "/doc.md", "alpha")

	resp := f.exec(t, inv, "edit", `{"path":"/doc.md"}`)
	if resp.Success {
		t.Fatal("expected failure for neither op")
	}
	resp = f.exec(t, inv, "edit", `{"path":"/doc.md","old":"a","new":"b","insert_line":1,"insert_content":"x"}`)
	if resp.Success {
		t.Fatal("expected failure for both ops")
	}
	if !strings.Contains(resp.Error, "not both") {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestEditHashGuard(t *testing.T) {
	f := newFixture(t)
	inv := testInv()
	f.seed(t, inv.WorkspaceID, "/doc.md", "v1")

	read := resultMap(t, f.exec(t, inv, "read", `{"path":"/doc.md"}`))
	staleHash := read["hash"].(string)

	f.seed(t, inv.WorkspaceID, "/doc.md", "v2")

	resp := f.exec(t, inv, "edit", fmt.Sprintf(
		`{"path":"/doc.md","old":"v2","new":"v3","last_read_hash":"%s"}`, staleHash))
	if resp.Success {
		t.Fatal("expected conflict for a stale hash")
	}
	if !strings.Contains(resp.Error, "changed since last read") {
		t.Errorf("Error = %q", resp.Error)
	}

	fresh := resultMap(t, f.exec(t, inv, "read", `{"path":"/doc.md"}`))
	resp = f.exec(t, inv, "edit", fmt.Sprintf(
		`{"path":"/doc.md","old":"v2","new":"v3","last_read_hash":"%s"}`, fresh["hash"].(string)))
	if !resp.Success {
		t.Fatalf("fresh-hash edit failed: %s", resp.Error)
	}
}

func TestRmAndRmAgain(t *testing.T) {
	f := newFixture(t)
	inv := testInv()
	f.seed(t, inv.WorkspaceID, "/tmp/junk.md", "junk")

	res := resultMap(t, f.exec(t, inv, "rm", `{"path":"/tmp/junk.md"}`))
	if res["removed"].(float64) != 1 {
		t.Errorf("removed = %v, want 1", res["removed"])
	}

	resp := f.exec(t, inv, "rm", `{"path":"/tmp/junk.md"}`)
	if resp.Success {
		t.Fatal("expected failure deleting twice")
	}
}

func TestMv(t *testing.T) {
	f := newFixture(t)
	inv := testInv()
	f.seed(t, inv.WorkspaceID, "/old.md", "content")
	f.seed(t, inv.WorkspaceID, "/busy.md", "other")

	res := resultMap(t, f.exec(t, inv, "mv", `{"src":"/old.md","dst":"/new.md"}`))
	if res["dst"] != "/new.md" {
		t.Errorf("dst = %v", res["dst"])
	}

	read := resultMap(t, f.exec(t, inv, "read", `{"path":"/new.md"}`))
	if read["content"] != "content" {
		t.Errorf("moved content = %q", read["content"])
	}

	resp := f.exec(t, inv, "mv", `{"src":"/new.md","dst":"/busy.md"}`)
	if resp.Success {
		t.Fatal("expected failure moving onto an existing file")
	}
}

func TestTouchAndMkdir(t *testing.T) {
	f := newFixture(t)
	inv := testInv()

	res := resultMap(t, f.exec(t, inv, "touch", `{"path":"/empty.md"}`))
	if res["path"] != "/empty.md" {
		t.Errorf("path = %v", res["path"])
	}
	read := resultMap(t, f.exec(t, inv, "read", `{"path":"/empty.md"}`))
	if read["content"] != "" || read["total_lines"].(float64) != 0 {
		t.Errorf("touched file not empty: %v", read)
	}

	resultMap(t, f.exec(t, inv, "mkdir", `{"path":"/a/b/c"}`))
	info := resultMap(t, f.exec(t, inv, "file_info", `{"path":"/a/b/c"}`))
	if info["kind"] != "folder" {
		t.Errorf("kind = %v, want folder", info["kind"])
	}
	// Idempotent.
	resultMap(t, f.exec(t, inv, "mkdir", `{"path":"/a/b/c"}`))
}

func TestFileInfo(t *testing.T) {
	f := newFixture(t)
	inv := testInv()
	f.seed(t, inv.WorkspaceID, "/doc.md", "hello world")

	res := resultMap(t, f.exec(t, inv, "file_info", `{"path":"/doc.md"}`))
	if res["kind"] != "document" {
		t.Errorf("kind = %v", res["kind"])
	}
	if res["size"].(float64) != float64(len("hello world")) {
		t.Errorf("size = %v", res["size"])
	}
	if res["hash"] != vfs.HashContent("hello world") {
		t.Errorf("hash = %v", res["hash"])
	}
	if res["version_id"].(float64) <= 0 {
		t.Errorf("version_id = %v", res["version_id"])
	}

	resp := f.exec(t, inv, "file_info", `{"path":"/ghost.md"}`)
	if resp.Success {
		t.Fatal("expected failure for a missing file")
	}
}
