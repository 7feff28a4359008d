// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy scans inbound chat queries against content rules.
//
// The rules live in an embedded YAML file so the binary needs no external
// configuration, and operators can still override them with their own
// rules file at startup.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var embeddedRules []byte

// Pattern is one regular expression within a rule.
type Pattern struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Regex       string `yaml:"regex"`

	compiled *regexp.Regexp
}

// Rule groups patterns under a named policy concern.
type Rule struct {
	Name     string    `yaml:"name"`
	Priority int       `yaml:"priority"`
	Patterns []Pattern `yaml:"patterns"`
}

// Violation describes the first rule match found in a query.
type Violation struct {
	Rule        string
	PatternID   string
	Description string
}

// ruleFile is the YAML document shape.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Engine evaluates queries against the compiled rule set.
//
// # Thread Safety
//
// Safe for concurrent use after construction; Scan only reads.
type Engine struct {
	rules []Rule
}

// NewEngine builds an engine from the embedded rules.
func NewEngine() (*Engine, error) {
	return newEngineFromYAML(embeddedRules)
}

// NewEngineFromFile builds an engine from an operator-supplied rules file.
func NewEngineFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy rules: %w", err)
	}
	return newEngineFromYAML(data)
}

func newEngineFromYAML(data []byte) (*Engine, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy rules: %w", err)
	}

	for i := range file.Rules {
		for j := range file.Rules[i].Patterns {
			p := &file.Rules[i].Patterns[j]
			compiled, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("rule %s pattern %s: %w", file.Rules[i].Name, p.ID, err)
			}
			p.compiled = compiled
		}
	}

	sort.SliceStable(file.Rules, func(a, b int) bool {
		return file.Rules[a].Priority > file.Rules[b].Priority
	})
	return &Engine{rules: file.Rules}, nil
}

// Scan returns the highest-priority violation in the text, or nil when
// the text is clean.
func (e *Engine) Scan(text string) *Violation {
	for _, rule := range e.rules {
		for _, pattern := range rule.Patterns {
			if pattern.compiled.MatchString(text) {
				return &Violation{
					Rule:        rule.Name,
					PatternID:   pattern.ID,
					Description: pattern.Description,
				}
			}
		}
	}
	return nil
}
