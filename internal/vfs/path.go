package vfs

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// Normalize canonicalizes a workspace path: trims whitespace, collapses
// repeated slashes, drops "." segments, resolves ".." by popping, and
// never escapes above the root. The result always starts with "/" and
// the function is idempotent.
//
//	Normalize("/a//b/../c/./d/") == "/a/c/d"
//	Normalize("")                == "/"
//	Normalize("/..")             == "/"
func Normalize(path string) string {
	path = strings.TrimSpace(path)
	segments := strings.Split(path, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	return "/" + strings.Join(out, "/")
}

// ParentPath returns the canonical parent of a normalized path. The
// parent of "/" is "/".
func ParentPath(path string) string {
	if path == "/" {
		return "/"
	}
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

// BaseName returns the last segment of a normalized path. BaseName("/")
// is "/".
func BaseName(path string) string {
	if path == "/" {
		return "/"
	}
	idx := strings.LastIndex(path, "/")
	return path[idx+1:]
}

// Ancestors returns every proper ancestor of a normalized path from
// shallowest to deepest, excluding the root. Ancestors("/a/b/c") is
// ["/a", "/a/b"].
func Ancestors(path string) []string {
	if path == "/" {
		return nil
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) <= 1 {
		return nil
	}
	out := make([]string, 0, len(segments)-1)
	current := ""
	for _, seg := range segments[:len(segments)-1] {
		current += "/" + seg
		out = append(out, current)
	}
	return out
}

// Slugify lowers a file name to a URL-safe slug.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// InferFileType maps a path to the file type Write creates for it.
// Plans are ".plan" files; canvases ".canvas"; everything else is a
// document. Folders and chats are never created through Write.
func InferFileType(path string) models.FileType {
	name := strings.ToLower(BaseName(path))
	switch {
	case strings.HasSuffix(name, ".plan"):
		return models.FileTypePlan
	case strings.HasSuffix(name, ".canvas"):
		return models.FileTypeCanvas
	default:
		return models.FileTypeDocument
	}
}

// HashContent returns the hex-encoded SHA-256 of content. Version rows
// store it; readers use it for compare-and-swap edits.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
