// SPDX-License-Identifier: MIT

package config

import "sort"

// ChangeSummary describes the result of comparing two configurations.
type ChangeSummary struct {
	ChangedFields   []string // field paths that changed
	RestartRequired bool     // true if any changed field is not hot-reloadable
}

// hotReloadable lists the fields that take effect without a restart.
// Everything else (working directory, store backend, listen address) is
// bound at startup.
var hotReloadable = map[string]struct{}{
	"Log.Level":            {},
	"Masters.Reuse":        {},
	"Pipeline.Workers":     {},
	"Pipeline.StepTimeout": {},
	"QA.ReadTimeout":       {},
	"QA.ShutdownTimeout":   {},
}

// Diff compares two configurations field by field. Version is build
// metadata, not configuration, and is excluded.
func Diff(old, next AppConfig) ChangeSummary {
	var s ChangeSummary
	s.record("WorkDir", old.WorkDir != next.WorkDir)
	s.record("Masters.Backend", old.Masters.Backend != next.Masters.Backend)
	s.record("Masters.DBPath", old.Masters.DBPath != next.Masters.DBPath)
	s.record("Masters.Reuse", old.Masters.Reuse != next.Masters.Reuse)
	s.record("QA.Listen", old.QA.Listen != next.QA.Listen)
	s.record("QA.ReadTimeout", old.QA.ReadTimeout != next.QA.ReadTimeout)
	s.record("QA.ShutdownTimeout", old.QA.ShutdownTimeout != next.QA.ShutdownTimeout)
	s.record("Pipeline.Workers", old.Pipeline.Workers != next.Pipeline.Workers)
	s.record("Pipeline.StepTimeout", old.Pipeline.StepTimeout != next.Pipeline.StepTimeout)
	s.record("Log.Level", old.Log.Level != next.Log.Level)
	sort.Strings(s.ChangedFields)
	return s
}

func (s *ChangeSummary) record(path string, changed bool) {
	if !changed {
		return
	}
	s.ChangedFields = append(s.ChangedFields, path)
	if _, ok := hotReloadable[path]; !ok {
		s.RestartRequired = true
	}
}
