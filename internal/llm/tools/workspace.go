package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

var (
	ErrFileNotFound   = errors.New("file not found")
	ErrFileExists     = errors.New("file already exists")
	ErrNotAFolder     = errors.New("not a folder")
	ErrIsFolder       = errors.New("path is a folder")
	ErrFolderNotEmpty = errors.New("folder is not empty")
	ErrInvalidPath    = errors.New("invalid path")
)

const maxFindResults = 20

// Entry is the JSON shape of a listed file or folder.
type Entry struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Type     string  `json:"type"`
	Children []Entry `json:"children,omitempty"`
}

// FileMatch is one fs_find_file result.
type FileMatch struct {
	Path  string `json:"path"`
	Score int    `json:"score"`
}

// ContentMatch is one fs_search_content result.
type ContentMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// CleanPath normalizes a workspace-relative path. The root is "".
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	p = strings.TrimPrefix(p, "./")
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: absolute paths are not allowed (got %s)", ErrInvalidPath, p)
	}
	if p == "" || p == "." {
		return "", nil
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s escapes the workspace", ErrInvalidPath, p)
	}
	return clean, nil
}

// RankPaths fuzzy-matches query against paths, best first.
func RankPaths(query string, paths []string) []FileMatch {
	query = strings.TrimSpace(query)
	if query == "" {
		return []FileMatch{}
	}
	matches := fuzzy.Find(query, paths)
	sort.Stable(matches)
	out := make([]FileMatch, 0, min(len(matches), maxFindResults))
	for i, m := range matches {
		if i == maxFindResults {
			break
		}
		out = append(out, FileMatch{Path: m.Str, Score: m.Score})
	}
	return out
}

// SearchLines returns the lines of content containing query.
func SearchLines(filePath, content, query string) []ContentMatch {
	if query == "" {
		return nil
	}
	var out []ContentMatch
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(line, query) {
			out = append(out, ContentMatch{Path: filePath, Line: i + 1, Text: strings.TrimRight(line, "\r")})
		}
	}
	return out
}

// JSONOutput renders v as tool output.
func JSONOutput(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}
