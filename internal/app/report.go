package app

import (
	"time"

	"github.com/RyanBlaney/sonido-mosaic/configs"
	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/analysis"
	"github.com/RyanBlaney/sonido-mosaic/pkg/corpus"
)

// Report summarises one run
type Report struct {
	Timestamp     time.Time          `json:"timestamp"`
	Kinds         []string           `json:"kinds"`
	Source        *CorpusReport      `json:"source,omitempty"`
	Target        *CorpusReport      `json:"target,omitempty"`
	MatchKey      string             `json:"match_key,omitempty"`
	MatchedGrains int                `json:"matched_grains"`
	Outputs       []OutputReport     `json:"outputs,omitempty"`
	Durations     map[string]float64 `json:"durations_seconds"`
}

// CorpusReport describes an analysed corpus
type CorpusReport struct {
	Path    string              `json:"path"`
	Items   int                 `json:"items"`
	Seconds float64             `json:"seconds"`
	Cache   analysis.CacheStats `json:"cache"`
}

// OutputReport describes one synthesized file
type OutputReport struct {
	Name             string  `json:"name"`
	Path             string  `json:"path"`
	Seconds          float64 `json:"seconds"`
	Grains           int     `json:"grains"`
	Peak             float64 `json:"peak"`
	MissingPitch     int     `json:"missing_pitch"`
	MissingAmplitude int     `json:"missing_amplitude"`
}

func newReport(config *configs.Config) *Report {
	r := &Report{
		Timestamp: time.Now(),
		Durations: make(map[string]float64),
	}
	if kinds, err := config.Kinds(); err == nil {
		for _, k := range kinds {
			r.Kinds = append(r.Kinds, k.String())
		}
	}
	return r
}

func corpusReport(c *corpus.Corpus) *CorpusReport {
	return &CorpusReport{
		Path:    c.Root(),
		Items:   len(c.Items()),
		Seconds: c.Seconds(),
		Cache:   c.Cache().Stats(),
	}
}

// data flattens the report for the output formatters. Per-output rows are only
// included in verbose mode or when there are few of them.
func (r *Report) data(verbose bool) map[string]any {
	out := map[string]any{
		"timestamp":         r.Timestamp,
		"kinds":             r.Kinds,
		"matched_grains":    r.MatchedGrains,
		"durations_seconds": r.Durations,
	}
	if r.MatchKey != "" {
		out["match_key"] = r.MatchKey
	}
	for role, c := range map[string]*CorpusReport{"source": r.Source, "target": r.Target} {
		if c == nil {
			continue
		}
		out[role] = map[string]any{
			"path":       c.Path,
			"items":      c.Items,
			"seconds":    c.Seconds,
			"cache_hits": c.Cache.Hits,
			"computed":   c.Cache.Computed,
			"drifted":    c.Cache.Drifted,
		}
	}

	if len(r.Outputs) == 0 {
		return out
	}
	out["output_count"] = len(r.Outputs)
	if !verbose && len(r.Outputs) > 10 {
		return out
	}
	outputs := make([]any, 0, len(r.Outputs))
	for _, o := range r.Outputs {
		outputs = append(outputs, map[string]any{
			"name":              o.Name,
			"path":              o.Path,
			"seconds":           o.Seconds,
			"grains":            o.Grains,
			"peak":              o.Peak,
			"missing_pitch":     o.MissingPitch,
			"missing_amplitude": o.MissingAmplitude,
		})
	}
	out["outputs"] = outputs
	return out
}
