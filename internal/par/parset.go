// SPDX-License-Identifier: MIT

// Package par implements the hierarchical parameter sets that drive a
// reduction run. A Set is a typed, ordered collection of parameters with
// per-key defaults, allowed options and descriptions; sets nest to form the
// full hierarchy mirrored by the plain-text parameter file format (ini.go).
package par

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Kind enumerates the value types a parameter may hold.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStringList
	KindIntList
	KindFloatList
	// KindSet marks a nested parameter set (a configuration sub-section).
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindStringList:
		return "string list"
	case KindIntList:
		return "int list"
	case KindFloatList:
		return "float list"
	case KindSet:
		return "section"
	default:
		return "unknown"
	}
}

// Def describes a single parameter: its key, value kind, default, the
// discrete options it may take (string kinds only), and its documentation.
type Def struct {
	Key      string
	Kind     Kind
	Default  any
	Options  []string
	Descr    string
	Required bool
	Child    *Set // populated only for KindSet
}

// Set is an ordered, typed parameter collection. Assignments are validated
// against the parameter definitions; unknown keys, wrong kinds and values
// outside the allowed options are rejected.
type Set struct {
	name   string
	descr  string
	defs   []*Def
	byKey  map[string]*Def
	values map[string]any
}

// New builds a Set from the given definitions. It panics on duplicate or
// malformed definitions: the hierarchy is constructed from compile-time
// literals, so any failure here is a programming error.
func New(name string, defs ...*Def) *Set {
	s := &Set{
		name:   name,
		defs:   defs,
		byKey:  make(map[string]*Def, len(defs)),
		values: make(map[string]any, len(defs)),
	}
	for _, d := range defs {
		if d.Key == "" {
			panic(fmt.Sprintf("par: empty key in set %q", name))
		}
		if _, dup := s.byKey[d.Key]; dup {
			panic(fmt.Sprintf("par: duplicate key %q in set %q", d.Key, name))
		}
		if d.Kind == KindSet {
			if d.Child == nil {
				panic(fmt.Sprintf("par: section %q in set %q has no child set", d.Key, name))
			}
			d.Child.name = d.Key
			d.Child.descr = d.Descr
		} else if d.Default != nil {
			v, err := coerce(d, d.Default)
			if err != nil {
				panic(fmt.Sprintf("par: invalid default for %s.%s: %v", name, d.Key, err))
			}
			d.Default = v
		}
		s.byKey[d.Key] = d
		if d.Kind != KindSet {
			s.values[d.Key] = d.Default
		}
	}
	return s
}

// Name returns the section name of the set.
func (s *Set) Name() string { return s.name }

// Keys returns the parameter keys in definition order.
func (s *Set) Keys() []string {
	keys := make([]string, len(s.defs))
	for i, d := range s.defs {
		keys[i] = d.Key
	}
	return keys
}

// Lookup returns the definition for a dotted path, if it exists.
func (s *Set) Lookup(path string) (*Def, bool) {
	set, key, err := s.resolve(path)
	if err != nil {
		return nil, false
	}
	d, ok := set.byKey[key]
	return d, ok
}

// resolve walks the dotted path down to the set owning the final key.
func (s *Set) resolve(path string) (*Set, string, error) {
	curr := s
	parts := strings.Split(path, ".")
	for i, p := range parts[:len(parts)-1] {
		d, ok := curr.byKey[p]
		if !ok || d.Kind != KindSet {
			return nil, "", fmt.Errorf("%w: %s", ErrUnknownKey, strings.Join(parts[:i+1], "."))
		}
		curr = d.Child
	}
	return curr, parts[len(parts)-1], nil
}

// Get returns the value at the given dotted path.
func (s *Set) Get(path string) (any, error) {
	set, key, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	d, ok := set.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, path)
	}
	if d.Kind == KindSet {
		return d.Child, nil
	}
	return set.values[key], nil
}

// Set assigns a value to the given dotted path, validating kind and options.
// Raw string input (as produced by the config parser) is converted to the
// parameter's kind.
func (s *Set) Set(path string, value any) error {
	set, key, err := s.resolve(path)
	if err != nil {
		return err
	}
	d, ok := set.byKey[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, joinPath(s.pathTo(set), key))
	}
	if d.Kind == KindSet {
		return fmt.Errorf("%w: %s is a section, not a parameter", ErrInvalidValue, path)
	}
	return set.assign(d, value)
}

func (s *Set) assign(d *Def, value any) error {
	if value == nil {
		s.values[d.Key] = nil
		return nil
	}
	v, err := coerce(d, value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, d.Key, err)
	}
	if err := checkOptions(d, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, d.Key, err)
	}
	s.values[d.Key] = v
	return nil
}

// pathTo returns the dotted path from s down to target, or "" if target is s.
func (s *Set) pathTo(target *Set) string {
	if s == target {
		return ""
	}
	for _, d := range s.defs {
		if d.Kind != KindSet {
			continue
		}
		if d.Child == target {
			return d.Key
		}
		if sub := d.Child.pathTo(target); sub != "" {
			return d.Key + "." + sub
		}
	}
	return ""
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Typed accessors. Paths are compile-time literals in pipeline code, so an
// unknown key or a kind mismatch is a programming error and panics.

func (s *Set) mustGet(path string, kind Kind) any {
	set, key, err := s.resolve(path)
	if err != nil {
		panic(fmt.Sprintf("par: %v", err))
	}
	d, ok := set.byKey[key]
	if !ok {
		panic(fmt.Sprintf("par: unknown parameter %q", path))
	}
	if d.Kind != kind {
		panic(fmt.Sprintf("par: %q is %s, not %s", path, d.Kind, kind))
	}
	return set.values[key]
}

// String returns the string parameter at path ("" when unset).
func (s *Set) String(path string) string {
	v := s.mustGet(path, KindString)
	if v == nil {
		return ""
	}
	return v.(string)
}

// Bool returns the bool parameter at path (false when unset).
func (s *Set) Bool(path string) bool {
	v := s.mustGet(path, KindBool)
	if v == nil {
		return false
	}
	return v.(bool)
}

// Int returns the int parameter at path (0 when unset).
func (s *Set) Int(path string) int {
	v := s.mustGet(path, KindInt)
	if v == nil {
		return 0
	}
	return v.(int)
}

// Float returns the float parameter at path (0 when unset).
func (s *Set) Float(path string) float64 {
	v := s.mustGet(path, KindFloat)
	if v == nil {
		return 0
	}
	return v.(float64)
}

// StringList returns the string-list parameter at path (nil when unset).
func (s *Set) StringList(path string) []string {
	v := s.mustGet(path, KindStringList)
	if v == nil {
		return nil
	}
	return v.([]string)
}

// IntList returns the int-list parameter at path (nil when unset).
func (s *Set) IntList(path string) []int {
	v := s.mustGet(path, KindIntList)
	if v == nil {
		return nil
	}
	return v.([]int)
}

// FloatList returns the float-list parameter at path (nil when unset).
func (s *Set) FloatList(path string) []float64 {
	v := s.mustGet(path, KindFloatList)
	if v == nil {
		return nil
	}
	return v.([]float64)
}

// Child returns the nested set at path.
func (s *Set) Child(path string) *Set {
	set, key, err := s.resolve(path)
	if err != nil {
		panic(fmt.Sprintf("par: %v", err))
	}
	d, ok := set.byKey[key]
	if !ok || d.Kind != KindSet {
		panic(fmt.Sprintf("par: %q is not a section", path))
	}
	return d.Child
}

// Changed returns the dotted paths of all parameters whose current value
// differs from the default, in definition order. This is what allows a user
// file to list only non-default values.
func (s *Set) Changed() []string {
	var out []string
	s.changed("", &out)
	return out
}

func (s *Set) changed(prefix string, out *[]string) {
	for _, d := range s.defs {
		path := joinPath(prefix, d.Key)
		if d.Kind == KindSet {
			d.Child.changed(path, out)
			continue
		}
		if !reflect.DeepEqual(s.values[d.Key], d.Default) {
			*out = append(*out, path)
		}
	}
}

// Diff returns the dotted paths at which two sets built from the same
// hierarchy hold different values.
func (s *Set) Diff(other *Set) []string {
	var out []string
	s.diff(other, "", &out)
	return out
}

func (s *Set) diff(other *Set, prefix string, out *[]string) {
	for _, d := range s.defs {
		path := joinPath(prefix, d.Key)
		od, ok := other.byKey[d.Key]
		if !ok {
			*out = append(*out, path)
			continue
		}
		if d.Kind == KindSet {
			if od.Kind == KindSet {
				d.Child.diff(od.Child, path, out)
			} else {
				*out = append(*out, path)
			}
			continue
		}
		if !reflect.DeepEqual(s.values[d.Key], other.values[d.Key]) {
			*out = append(*out, path)
		}
	}
}

// Validate checks that all required parameters are set, recursing into
// nested sections.
func (s *Set) Validate() error {
	var missing []string
	s.validate("", &missing)
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	return nil
}

func (s *Set) validate(prefix string, missing *[]string) {
	for _, d := range s.defs {
		path := joinPath(prefix, d.Key)
		if d.Kind == KindSet {
			d.Child.validate(path, missing)
			continue
		}
		if d.Required && s.values[d.Key] == nil {
			*missing = append(*missing, path)
		}
	}
}

// Clone returns a deep copy of the set, including nested sections and list
// values. Definitions are shared; values are not.
func (s *Set) Clone() *Set {
	defs := make([]*Def, len(s.defs))
	for i, d := range s.defs {
		nd := *d
		if d.Kind == KindSet {
			nd.Child = d.Child.Clone()
		}
		defs[i] = &nd
	}
	c := New(s.name, defs...)
	c.descr = s.descr
	for k, v := range s.values {
		c.values[k] = copyValue(v)
	}
	return c
}

func copyValue(v any) any {
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []int:
		out := make([]int, len(t))
		copy(out, t)
		return out
	case []float64:
		out := make([]float64, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// coerce converts an input value to the definition's kind. Strings and
// string lists are accepted for any kind, since that is what the config
// parser produces.
func coerce(d *Def, value any) (any, error) {
	switch d.Kind {
	case KindString:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected string, got %T", value)
	case KindBool:
		switch t := value.(type) {
		case bool:
			return t, nil
		case string:
			return parseBool(t)
		}
		return nil, fmt.Errorf("expected bool, got %T", value)
	case KindInt:
		switch t := value.(type) {
		case int:
			return t, nil
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(t))
			if err != nil {
				return nil, fmt.Errorf("invalid int %q", t)
			}
			return i, nil
		}
		return nil, fmt.Errorf("expected int, got %T", value)
	case KindFloat:
		switch t := value.(type) {
		case float64:
			return t, nil
		case int:
			return float64(t), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid float %q", t)
			}
			return f, nil
		}
		return nil, fmt.Errorf("expected float, got %T", value)
	case KindStringList:
		switch t := value.(type) {
		case []string:
			return t, nil
		case string:
			return []string{t}, nil
		}
		return nil, fmt.Errorf("expected string list, got %T", value)
	case KindIntList:
		ss, err := asStringSlice(value)
		if err == nil {
			out := make([]int, len(ss))
			for i, e := range ss {
				n, convErr := strconv.Atoi(strings.TrimSpace(e))
				if convErr != nil {
					return nil, fmt.Errorf("invalid int %q", e)
				}
				out[i] = n
			}
			return out, nil
		}
		if t, ok := value.([]int); ok {
			return t, nil
		}
		return nil, fmt.Errorf("expected int list, got %T", value)
	case KindFloatList:
		ss, err := asStringSlice(value)
		if err == nil {
			out := make([]float64, len(ss))
			for i, e := range ss {
				f, convErr := strconv.ParseFloat(strings.TrimSpace(e), 64)
				if convErr != nil {
					return nil, fmt.Errorf("invalid float %q", e)
				}
				out[i] = f
			}
			return out, nil
		}
		if t, ok := value.([]float64); ok {
			return t, nil
		}
		return nil, fmt.Errorf("expected float list, got %T", value)
	}
	return nil, fmt.Errorf("cannot assign to kind %s", d.Kind)
}

func asStringSlice(value any) ([]string, error) {
	switch t := value.(type) {
	case []string:
		return t, nil
	case string:
		return []string{t}, nil
	}
	return nil, fmt.Errorf("not a string slice")
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid bool %q", s)
}

func checkOptions(d *Def, v any) error {
	if len(d.Options) == 0 {
		return nil
	}
	check := func(s string) error {
		for _, o := range d.Options {
			if s == o {
				return nil
			}
		}
		return fmt.Errorf("value %q not among options: %s", s, strings.Join(d.Options, ", "))
	}
	switch t := v.(type) {
	case string:
		return check(t)
	case []string:
		for _, e := range t {
			if err := check(e); err != nil {
				return err
			}
		}
	}
	return nil
}
