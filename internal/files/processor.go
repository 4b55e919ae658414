// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2/lexers"
)

// DefaultMaxFileSize is the largest file ProcessFile will read.
const DefaultMaxFileSize = 1024 * 1024

// DefaultExcludes are path components skipped while walking.
var DefaultExcludes = []string{
	"node_modules",
	".git",
	"dist",
	"build",
	"coverage",
	".DS_Store",
	".env",
}

// codeExtensions are the extensions treated as code when no filter is given.
var codeExtensions = map[string]bool{
	".js": true, ".ts": true, ".jsx": true, ".tsx": true, ".py": true,
	".java": true, ".cpp": true, ".c": true, ".h": true, ".cs": true,
	".php": true, ".rb": true, ".go": true, ".rs": true, ".kt": true,
	".swift": true, ".scala": true, ".r": true, ".m": true, ".sh": true,
	".ps1": true, ".html": true, ".css": true, ".scss": true, ".less": true,
	".sql": true, ".json": true, ".xml": true, ".yaml": true, ".yml": true,
	".toml": true, ".ini": true,
}

// FileInfo is one file accepted by the processor.
type FileInfo struct {
	Path     string
	Content  string
	Size     int64
	IsCode   bool
	Language string // lexer name, empty when unknown
}

// Processor reads files subject to a size limit and exclude patterns.
type Processor struct {
	maxSize  int64
	excludes []string
}

// NewProcessor creates a processor with the default excludes. A maxSize of
// zero or less selects DefaultMaxFileSize.
func NewProcessor(maxSize int64) *Processor {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &Processor{
		maxSize:  maxSize,
		excludes: slices.Clone(DefaultExcludes),
	}
}

// AddExclude adds a pattern. Patterns are matched against each path
// component using filepath.Match syntax, so "vendor" and "*.min.js" both work.
func (p *Processor) AddExclude(pattern string) {
	if pattern == "" || slices.Contains(p.excludes, pattern) {
		return
	}
	p.excludes = append(p.excludes, pattern)
}

// RemoveExclude removes a pattern previously added or present by default.
func (p *Processor) RemoveExclude(pattern string) {
	p.excludes = slices.DeleteFunc(p.excludes, func(s string) bool { return s == pattern })
}

// Excludes returns the current exclude patterns.
func (p *Processor) Excludes() []string {
	return slices.Clone(p.excludes)
}

// Excluded reports whether any component of path matches an exclude pattern.
func (p *Processor) Excluded(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		for _, pattern := range p.excludes {
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}

// ProcessFile reads one file. It returns nil when the file is missing,
// unreadable, not a regular file, larger than the limit, or not valid UTF-8.
func (p *Processor) ProcessFile(path string) *FileInfo {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() > p.maxSize {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil || !utf8.Valid(data) {
		return nil
	}

	return &FileInfo{
		Path:     path,
		Content:  string(data),
		Size:     info.Size(),
		IsCode:   IsCode(path),
		Language: Language(path),
	}
}

// ProcessDirectory collects every acceptable file under dir in lexical
// order. Subdirectories are descended only when recursive is set.
// Unreadable entries are skipped.
func (p *Processor) ProcessDirectory(dir string, recursive bool) []FileInfo {
	var results []FileInfo

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}

		if path != dir {
			rel, relErr := filepath.Rel(dir, path)
			if relErr == nil && p.Excluded(rel) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
		}

		if d.IsDir() {
			if path != dir && !recursive {
				return fs.SkipDir
			}
			return nil
		}

		if fi := p.ProcessFile(path); fi != nil {
			results = append(results, *fi)
		}
		return nil
	})

	return results
}

// RelevantFiles returns the files under target worth sending for analysis.
// A regular file is returned on its own. For a directory, files are filtered
// by the given extensions, or to code files when none are given, and
// subdirectories are searched only when recursive is set.
func (p *Processor) RelevantFiles(target string, extensions []string, recursive bool) ([]FileInfo, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", target, err)
	}

	if !info.IsDir() {
		fi := p.ProcessFile(target)
		if fi == nil {
			return nil, nil
		}
		return []FileInfo{*fi}, nil
	}

	all := p.ProcessDirectory(target, recursive)
	exts := normalizeExtensions(extensions)

	out := all[:0]
	for _, fi := range all {
		if len(exts) > 0 {
			if hasAnySuffix(fi.Path, exts) {
				out = append(out, fi)
			}
		} else if fi.IsCode {
			out = append(out, fi)
		}
	}
	return out, nil
}

// ParseExtensions splits a comma-separated extension list such as "go, .md".
func ParseExtensions(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	return normalizeExtensions(strings.Split(list, ","))
}

func normalizeExtensions(exts []string) []string {
	var out []string
	for _, e := range exts {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func hasAnySuffix(path string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

// IsCode reports whether path has a recognized source code extension.
func IsCode(path string) bool {
	return codeExtensions[strings.ToLower(filepath.Ext(path))]
}

// Language returns the name of the syntax lexer matching path's file name,
// or "" when no lexer claims it.
func Language(path string) string {
	lexer := lexers.Match(filepath.Base(path))
	if lexer == nil {
		return ""
	}
	return lexer.Config().Name
}

// FindGitRoot walks up from start and returns the first directory that
// contains a .git entry.
func FindGitRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoGitRoot
		}
		dir = parent
	}
}

// ErrNoGitRoot is returned by FindGitRoot when no repository encloses start.
var ErrNoGitRoot = errors.New("not inside a git repository")

// HumanSize formats a byte count as "0 B", "512 B", "1.5 KB", "2 MB".
func HumanSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	s := strings.TrimSuffix(fmt.Sprintf("%.1f", size), ".0")
	return s + " " + units[i]
}
