package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"digest_bot/internal/fetcher"
	"digest_bot/internal/pipeline"
	"digest_bot/internal/rules"
)

// Pipeline is the YAML file describing sources, destinations, and the rule
// set for one deployment.
type Pipeline struct {
	Sources []fetcher.Source     `yaml:"sources"`
	Topics  []pipeline.TopicSpec `yaml:"topics"`
	Rules   rules.Set            `yaml:"rules"`

	MaxAgeDays          int `yaml:"max_age_days"`
	TopicBacklogCap     int `yaml:"topic_backlog_cap"`
	CycleEnqueueCap     int `yaml:"cycle_enqueue_cap"`
	SeenTTLDays         int `yaml:"seen_ttl_days"`
	SeenTTLRejectedDays int `yaml:"seen_ttl_rejected_days"`
}

// LoadPipeline reads and validates the pipeline file at path.
func LoadPipeline(path string) (*Pipeline, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	var p Pipeline
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse pipeline config: %w", err)
	}

	if len(p.Sources) == 0 {
		return nil, fmt.Errorf("pipeline config: at least one source is required")
	}
	for i, src := range p.Sources {
		if src.Kind == "" || src.URL == "" {
			return nil, fmt.Errorf("pipeline config: source %d needs both kind and url", i)
		}
	}
	if len(p.Topics) == 0 {
		return nil, fmt.Errorf("pipeline config: at least one topic is required")
	}
	keys := make(map[string]bool, len(p.Topics))
	for i, topic := range p.Topics {
		if topic.Key == "" {
			return nil, fmt.Errorf("pipeline config: topic %d has an empty key", i)
		}
		if keys[topic.Key] {
			return nil, fmt.Errorf("pipeline config: duplicate topic key %q", topic.Key)
		}
		keys[topic.Key] = true
	}
	if !keys[p.Rules.DefaultTopic] {
		return nil, fmt.Errorf("pipeline config: default_topic %q is not a configured topic", p.Rules.DefaultTopic)
	}
	if err := p.Rules.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

// Options converts the file values into refresh pipeline options.
func (p *Pipeline) Options() pipeline.Options {
	day := 24 * time.Hour
	return pipeline.Options{
		Sources:         p.Sources,
		Topics:          p.Topics,
		MaxAge:          time.Duration(p.MaxAgeDays) * day,
		MinScore:        p.Rules.MinScore,
		TopicBacklogCap: p.TopicBacklogCap,
		CycleEnqueueCap: p.CycleEnqueueCap,
		SeenTTL:         time.Duration(p.SeenTTLDays) * day,
		SeenTTLRejected: time.Duration(p.SeenTTLRejectedDays) * day,
	}
}
