// Package rules implements the keyword rule set that filters, scores, and
// routes fetched items. Rules are loaded from a YAML file so a deployment can
// swap them without code changes.
package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"digest_bot/internal/model"
)

// Weight is a single additive scoring rule: when Term occurs in the item's
// title or summary, Points are added and Reason is recorded.
type Weight struct {
	Term   string `yaml:"term"`
	Points int    `yaml:"points"`
	Reason string `yaml:"reason"`
}

// Route maps a keyword in the item's title to a topic key.
type Route struct {
	Term  string `yaml:"term"`
	Topic string `yaml:"topic"`
}

// Set is a complete rule set for one deployment.
type Set struct {
	// Include terms use OR logic: at least one must occur. Exclude terms use
	// AND logic: none may occur.
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`

	Weights  []Weight `yaml:"weights"`
	MinScore int      `yaml:"min_score"`

	Routes       []Route `yaml:"routes"`
	DefaultTopic string  `yaml:"default_topic"`
}

// LoadFile reads a rule set from a YAML file.
func LoadFile(path string) (*Set, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var s Set
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the rule set for configuration mistakes that must fail
// loud rather than silently match nothing.
func (s *Set) Validate() error {
	if len(s.Include) == 0 {
		return fmt.Errorf("rules: at least one include term is required")
	}
	if s.DefaultTopic == "" {
		return fmt.Errorf("rules: default_topic is required")
	}
	for i, w := range s.Weights {
		if w.Term == "" {
			return fmt.Errorf("rules: weight %d has an empty term", i)
		}
	}
	for i, r := range s.Routes {
		if r.Term == "" || r.Topic == "" {
			return fmt.Errorf("rules: route %d needs both term and topic", i)
		}
	}
	return nil
}

// Relevant reports whether the item passes the include/exclude terms.
// Matching is case-insensitive over title plus summary.
func (s *Set) Relevant(item model.RawItem) bool {
	text := matchText(item)

	for _, term := range s.Exclude {
		if strings.Contains(text, strings.ToLower(term)) {
			return false
		}
	}
	for _, term := range s.Include {
		if strings.Contains(text, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// Score sums the matching weight rules and returns the total with the
// reasons that contributed.
func (s *Set) Score(item model.RawItem) (int, []string) {
	text := matchText(item)

	score := 0
	var reasons []string
	for _, w := range s.Weights {
		if strings.Contains(text, strings.ToLower(w.Term)) {
			score += w.Points
			reason := w.Reason
			if reason == "" {
				reason = fmt.Sprintf("keyword: %s", w.Term)
			}
			reasons = append(reasons, reason)
		}
	}
	return score, reasons
}

// Topic returns the topic key for the item: the first route whose term
// occurs in the title, or the default topic. Routing looks only at the
// title, mirroring how destinations are named.
func (s *Set) Topic(item model.RawItem) string {
	title := strings.ToLower(item.Title)
	for _, r := range s.Routes {
		if strings.Contains(title, strings.ToLower(r.Term)) {
			return r.Topic
		}
	}
	return s.DefaultTopic
}

func matchText(item model.RawItem) string {
	return strings.ToLower(item.Title + " " + item.Summary)
}
