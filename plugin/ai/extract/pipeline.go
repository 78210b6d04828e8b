// Package extract recovers a structured task from free-form completion text.
// Strategies run in order and the first one that yields a titled task wins.
package extract

import (
	"github.com/hrygo/autotask/internal/util"
	"github.com/hrygo/autotask/store"
)

const (
	maxTitleRunes       = 200
	maxDescriptionRunes = 5000
	maxTagRunes         = 50
)

// Strategy names.
const (
	StrategyStrict  = "strict"
	StrategyFenced  = "fenced"
	StrategyLabeled = "labeled"
)

// Strategy attempts to read a task from raw text.
type Strategy struct {
	Name    string
	Extract func(raw string) (*store.TaskRecord, bool)
}

// DefaultStrategies returns strict JSON, fenced JSON and labeled text, in
// that order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: StrategyStrict, Extract: ParseStrict},
		{Name: StrategyFenced, Extract: ParseFenced},
		{Name: StrategyLabeled, Extract: ParseLabeled},
	}
}

// Result is the outcome of Pipeline.Extract. When Empty is set Record is nil
// and Raw holds the input verbatim.
type Result struct {
	Record   *store.TaskRecord
	Strategy string
	Raw      string
	Empty    bool
}

// Pipeline runs strategies in order.
type Pipeline struct {
	strategies []Strategy
}

// NewPipeline creates a pipeline. With no strategies it uses DefaultStrategies.
func NewPipeline(strategies ...Strategy) *Pipeline {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Pipeline{strategies: strategies}
}

// Extract returns the first usable record. A record is usable when its title
// is non-empty after normalization.
func (p *Pipeline) Extract(raw string) Result {
	for _, s := range p.strategies {
		rec, ok := s.Extract(raw)
		if !ok {
			continue
		}
		rec = normalizeRecord(rec)
		if rec.Usable() {
			return Result{Record: rec, Strategy: s.Name, Raw: raw}
		}
	}
	return Result{Raw: raw, Empty: true}
}

func normalizeRecord(rec *store.TaskRecord) *store.TaskRecord {
	if rec == nil {
		return nil
	}
	out := rec.Clone()
	out.Title = util.NormalizeText(out.Title, maxTitleRunes)
	out.Description = util.NormalizeText(out.Description, maxDescriptionRunes)
	tags := make([]string, 0, len(out.Tags))
	for _, tag := range out.Tags {
		tags = append(tags, util.NormalizeText(tag, maxTagRunes))
	}
	out.Tags = store.DedupTags(tags)
	return out
}
