// SPDX-License-Identifier: MIT

package par

import (
	"fmt"
	"strconv"
	"strings"
)

// EmitOptions control the rendering of a Set into parameter-file lines.
type EmitOptions struct {
	// ExcludeDefaults drops every parameter whose value equals its default,
	// so the output lists only what a user actually changed.
	ExcludeDefaults bool
	// IncludeDescr writes each parameter description as a comment above the
	// assignment.
	IncludeDescr bool
}

const commentWidth = 72

// ConfigLines renders the set in the plain-text parameter format, one
// element per line. The output round-trips through ParseConfig.
func (s *Set) ConfigLines(opts EmitOptions) []string {
	if s.allSections() {
		var lines []string
		for _, d := range s.defs {
			lines = append(lines, d.Child.sectionLines(0, opts)...)
		}
		return lines
	}
	return s.sectionLines(0, opts)
}

func (s *Set) allSections() bool {
	for _, d := range s.defs {
		if d.Kind != KindSet {
			return false
		}
	}
	return len(s.defs) > 0
}

func (s *Set) sectionLines(level int, opts EmitOptions) []string {
	sectionIndent := strings.Repeat(" ", 4*level)
	keyIndent := sectionIndent + "    "

	var lines []string
	if opts.IncludeDescr && s.descr != "" {
		lines = append(lines, commentLines(s.descr, sectionIndent)...)
	}
	lines = append(lines, sectionIndent+strings.Repeat("[", level+1)+s.name+strings.Repeat("]", level+1))
	min := len(lines)

	// Scalar parameters first, nested sections after.
	for _, d := range s.defs {
		if d.Kind == KindSet {
			continue
		}
		v := s.values[d.Key]
		if v == nil {
			continue
		}
		if opts.ExcludeDefaults && equalValues(v, d.Default) {
			continue
		}
		if opts.IncludeDescr && d.Descr != "" {
			lines = append(lines, commentLines(d.Descr, keyIndent)...)
		}
		lines = append(lines, keyIndent+d.Key+" = "+FormatValue(v))
	}
	for _, d := range s.defs {
		if d.Kind != KindSet {
			continue
		}
		lines = append(lines, d.Child.sectionLines(level+1, opts)...)
	}

	// An empty section carries no information.
	if len(lines) == min && opts.ExcludeDefaults {
		return nil
	}
	return lines
}

func equalValues(a, b any) bool {
	return FormatValue(a) == FormatValue(b)
}

// FormatValue renders a parameter value in the file format. Lists join with
// ", "; strings containing separators are quoted.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		if strings.ContainsAny(t, ",#") || t != strings.TrimSpace(t) {
			return strconv.Quote(t)
		}
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []string:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = FormatValue(e)
		}
		return joinList(parts)
	case []int:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = strconv.Itoa(e)
		}
		return joinList(parts)
	case []float64:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = strconv.FormatFloat(e, 'g', -1, 64)
		}
		return joinList(parts)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// joinList renders a list value; a single element keeps a trailing comma so
// the parser reads it back as a list.
func joinList(parts []string) string {
	if len(parts) == 1 {
		return parts[0] + ","
	}
	return strings.Join(parts, ", ")
}

func commentLines(text, indent string) []string {
	head := indent + "# "
	var lines []string
	for _, l := range wrapText(text, commentWidth-len(head)) {
		lines = append(lines, head+l)
	}
	return lines
}

// wrapText greedily wraps text at word boundaries.
func wrapText(text string, width int) []string {
	if width < 16 {
		width = 16
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	curr := words[0]
	for _, w := range words[1:] {
		if len(curr)+1+len(w) > width {
			lines = append(lines, curr)
			curr = w
			continue
		}
		curr += " " + w
	}
	return append(lines, curr)
}
