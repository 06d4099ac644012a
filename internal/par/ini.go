// SPDX-License-Identifier: MIT

package par

import (
	"fmt"
	"strings"
)

// Tree is the untyped result of parsing a parameter file: an ordered mapping
// of keys to scalar strings, string lists or nested trees. A Tree carries no
// validation; it becomes meaningful when applied to a Set.
type Tree struct {
	keys []string
	vals map[string]any // string | []string | *Tree
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{vals: make(map[string]any)}
}

// Put stores a value under key, preserving first-seen order. Storing an
// existing key overwrites its value (last assignment wins, matching the
// override semantics of the file format).
func (t *Tree) Put(key string, v any) {
	if _, ok := t.vals[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.vals[key] = v
}

// Get returns the value stored under key.
func (t *Tree) Get(key string) (any, bool) {
	v, ok := t.vals[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (t *Tree) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Section returns the nested tree under key, creating it if absent. If the
// key holds a scalar, the scalar is replaced.
func (t *Tree) Section(key string) *Tree {
	if v, ok := t.vals[key]; ok {
		if sub, ok := v.(*Tree); ok {
			return sub
		}
	}
	sub := NewTree()
	t.Put(key, sub)
	return sub
}

// Merge overlays other on top of t: scalars overwrite, sections merge
// recursively. Precedence therefore belongs to the argument.
func (t *Tree) Merge(other *Tree) {
	for _, k := range other.keys {
		ov := other.vals[k]
		osub, isSub := ov.(*Tree)
		if !isSub {
			t.Put(k, ov)
			continue
		}
		t.Section(k).Merge(osub)
	}
}

// ParseConfig parses the plain-text parameter format into a Tree.
//
// The grammar mirrors the parameter hierarchy: a section header's bracket
// depth equals its nesting depth ("[calibrations]" at the top level,
// "[[wavelengths]]" one level down), "key = value" lines assign within the
// current section, "#" starts a comment, and comma-separated values form
// lists.
func ParseConfig(data []byte) (*Tree, error) {
	root := NewTree()
	stack := []*Tree{root}

	for n, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(stripComment(raw))
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") {
			name, depth, err := parseSectionHeader(line)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrSyntax, n+1, err)
			}
			if depth > len(stack) {
				return nil, fmt.Errorf("%w: line %d: section %q skips a nesting level", ErrSyntax, n+1, name)
			}
			stack = stack[:depth]
			stack = append(stack, stack[depth-1].Section(name))
			continue
		}

		key, val, err := parseAssignment(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrSyntax, n+1, err)
		}
		stack[len(stack)-1].Put(key, val)
	}
	return root, nil
}

// parseSectionHeader returns the section name and its nesting depth (1 for
// a top-level "[name]").
func parseSectionHeader(line string) (string, int, error) {
	depth := 0
	for depth < len(line) && line[depth] == '[' {
		depth++
	}
	closing := strings.Repeat("]", depth)
	if !strings.HasSuffix(line, closing) {
		return "", 0, fmt.Errorf("unbalanced section brackets in %q", line)
	}
	name := strings.TrimSpace(line[depth : len(line)-depth])
	if name == "" || strings.ContainsAny(name, "[]") {
		return "", 0, fmt.Errorf("invalid section name in %q", line)
	}
	return name, depth, nil
}

func parseAssignment(line string) (string, any, error) {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", nil, fmt.Errorf("expected 'key = value', got %q", line)
	}
	key := strings.TrimSpace(line[:idx])
	if key == "" {
		return "", nil, fmt.Errorf("empty key in %q", line)
	}
	return key, parseValue(strings.TrimSpace(line[idx+1:])), nil
}

// parseValue interprets the right-hand side of an assignment: a quoted or
// bare scalar, or a comma-separated list. A trailing comma forces a
// single-element list.
func parseValue(s string) any {
	parts := splitList(s)
	if len(parts) == 1 && !strings.HasSuffix(s, ",") {
		return unquote(parts[0])
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, unquote(p))
	}
	return out
}

// splitList splits on commas outside quotes.
func splitList(s string) []string {
	var parts []string
	var b strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			b.WriteByte(c)
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == ',':
			parts = append(parts, strings.TrimSpace(b.String()))
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	parts = append(parts, strings.TrimSpace(b.String()))
	return parts
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// stripComment removes an unquoted trailing comment.
func stripComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '#':
			return line[:i]
		}
	}
	return line
}

// Apply walks the tree and assigns every leaf into the set, validating each
// assignment. Unknown sections and keys are reported with their full dotted
// path.
func (s *Set) Apply(t *Tree) error {
	return s.apply(t, "")
}

func (s *Set) apply(t *Tree, prefix string) error {
	for _, k := range t.keys {
		v := t.vals[k]
		path := joinPath(prefix, k)
		d, ok := s.byKey[k]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownKey, path)
		}
		if sub, isTree := v.(*Tree); isTree {
			if d.Kind != KindSet {
				return fmt.Errorf("%w: %s is a parameter, not a section", ErrInvalidValue, path)
			}
			if err := d.Child.apply(sub, path); err != nil {
				return err
			}
			continue
		}
		if d.Kind == KindSet {
			return fmt.Errorf("%w: %s is a section, not a parameter", ErrInvalidValue, path)
		}
		if err := s.assign(d, v); err != nil {
			if prefix == "" {
				return err
			}
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	return nil
}
