// Package script parses operator-authored dialogue scripts and compiles them
// into instruction text for the text-generation call.
//
// A script is free text annotated with stage markers. The marker grammar is
// fixed: a stage is declared by "[stage: Name]" on its own or inline, and the
// declaration order is the intended progression order.
package script

import (
	"regexp"
	"strings"
)

var stageMarkerPattern = regexp.MustCompile(`\[stage:\s*([^\]]+)\]`)

// Definition is a parsed operator script: the raw text plus the ordered list
// of declared stage names.
type Definition struct {
	Raw    string
	Stages []string
}

// Parse extracts the declared stages from a script in declaration order.
// Duplicate declarations keep their first position.
func Parse(raw string) Definition {
	def := Definition{Raw: raw}
	seen := make(map[string]bool)
	for _, match := range stageMarkerPattern.FindAllStringSubmatch(raw, -1) {
		name := strings.TrimSpace(match[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		def.Stages = append(def.Stages, name)
	}
	return def
}

// HasStage reports whether name is a declared stage.
func (d Definition) HasStage(name string) bool {
	for _, s := range d.Stages {
		if s == name {
			return true
		}
	}
	return false
}

// FirstStage returns the first declared stage, or empty for a stageless script.
func (d Definition) FirstStage() string {
	if len(d.Stages) == 0 {
		return ""
	}
	return d.Stages[0]
}
