// Package filter decides which changed paths are eligible for auto-commit.
//
// Patterns use path.Match syntax. A pattern without a slash is matched against
// every segment of a path, so "node_modules" or "*.log" apply at any depth.
// A pattern containing a slash is anchored at the watched directory and is
// matched segment by segment, where a "**" segment spans zero or more
// segments. Exclude patterns always win over include patterns.
package filter

import (
	"path"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

// Config lists the include and exclude globs. An empty include list admits
// every path.
type Config struct {
	IncludePatterns []string
	ExcludePatterns []string
}

type pattern struct {
	raw      string
	segments []string
	anchored bool
}

// Matcher evaluates path eligibility. It is immutable after construction and
// safe for concurrent use.
type Matcher struct {
	include []pattern
	exclude []pattern
	ignore  gitignore.Matcher
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithGitignore treats paths ignored by m as excluded.
func WithGitignore(m gitignore.Matcher) Option {
	return func(mt *Matcher) {
		mt.ignore = m
	}
}

// New compiles cfg into a Matcher. Malformed patterns are reported as
// configuration errors.
func New(cfg Config, opts ...Option) (*Matcher, error) {
	include, err := compile("include_patterns", cfg.IncludePatterns)
	if err != nil {
		return nil, err
	}
	exclude, err := compile("exclude_patterns", cfg.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	m := &Matcher{include: include, exclude: exclude}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func compile(field string, raws []string) ([]pattern, error) {
	out := make([]pattern, 0, len(raws))
	for _, raw := range raws {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}

		trailingSlash := strings.HasSuffix(p, "/")
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}

		segs := strings.Split(p, "/")
		for _, seg := range segs {
			if seg == "**" {
				continue
			}
			if _, err := path.Match(seg, ""); err != nil {
				return nil, gitwatchErrors.NewConfigError(field, raw,
					gitwatchErrors.Wrap(gitwatchErrors.ErrInvalidConfiguration, err.Error()))
			}
		}

		anchored := len(segs) > 1 || trailingSlash || strings.HasPrefix(strings.TrimSpace(raw), "/")
		if trailingSlash {
			segs = append(segs, "**")
		}
		out = append(out, pattern{raw: raw, segments: segs, anchored: anchored})
	}
	return out, nil
}

// IsEligible reports whether a slash-separated path relative to the watched
// directory should be committed.
func (m *Matcher) IsEligible(p string) bool {
	segs := split(p)
	if segs == nil || inGitDir(segs) {
		return false
	}

	if m.excluded(segs, false) {
		return false
	}

	if len(m.include) == 0 {
		return true
	}
	for _, pat := range m.include {
		if pat.match(segs) {
			return true
		}
	}
	return false
}

// SkipDir reports whether everything beneath dir is excluded, so a watcher
// need not descend into it.
func (m *Matcher) SkipDir(dir string) bool {
	segs := split(dir)
	if segs == nil {
		return false
	}
	if inGitDir(segs) {
		return true
	}

	for _, pat := range m.exclude {
		if !pat.anchored {
			if pat.match(segs) {
				return true
			}
			continue
		}
		if pat.segments[len(pat.segments)-1] == "**" && matchSegments(pat.segments, segs) {
			return true
		}
	}

	return m.ignore != nil && m.ignore.Match(segs, true)
}

func (m *Matcher) excluded(segs []string, isDir bool) bool {
	for _, pat := range m.exclude {
		if pat.match(segs) {
			return true
		}
	}
	return m.ignore != nil && m.ignore.Match(segs, isDir)
}

func (p pattern) match(segs []string) bool {
	if !p.anchored {
		for _, s := range segs {
			if ok, _ := path.Match(p.segments[0], s); ok {
				return true
			}
		}
		return false
	}
	return matchSegments(p.segments, segs)
}

func matchSegments(pat, segs []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			rest := pat[1:]
			for i := 0; i <= len(segs); i++ {
				if matchSegments(rest, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, _ := path.Match(pat[0], segs[0]); !ok {
			return false
		}
		pat, segs = pat[1:], segs[1:]
	}
	return len(segs) == 0
}

func split(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func inGitDir(segs []string) bool {
	for _, s := range segs {
		if s == ".git" {
			return true
		}
	}
	return false
}
