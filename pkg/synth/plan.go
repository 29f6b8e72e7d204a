package synth

import (
	"math"
	"math/rand/v2"

	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/analysis"
	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
	"github.com/RyanBlaney/sonido-mosaic/pkg/corpus"
	"github.com/RyanBlaney/sonido-mosaic/pkg/match"
	"github.com/RyanBlaney/sonido-mosaic/pkg/storage"
)

const plansGroup = "plans"

// PlanEntry is one output grain: where it goes, which source grain fills it
// and how that grain is adjusted
type PlanEntry struct {
	Grain          int            `json:"grain"`
	Time           float64        `json:"time"`
	TargetGrain    int            `json:"target_grain"`
	Source         match.GrainRef `json:"source"`
	SourceCentre   int            `json:"source_centre"`
	Distance       float64        `json:"distance"`
	PitchRatio     float64        `json:"pitch_ratio"`
	AmplitudeRatio float64        `json:"amplitude_ratio"`
}

// planStats counts grains whose enforcement fell back to a neutral ratio
type planStats struct {
	missingPitch     int
	missingAmplitude int
	unmatched        int
}

// planner resolves the plan of one target item
type planner struct {
	opts    Options
	result  *match.Result
	source  *corpus.Corpus
	target  *corpus.Item
	rng     *rand.Rand
	tarGrid analysis.GrainConfig
	stats   planStats
}

func (p *planner) plan(out analysis.GrainConfig, length int) ([]PlanEntry, error) {
	tarGrid, err := p.result.Grain(p.target.SampleRate)
	if err != nil {
		return nil, err
	}
	p.tarGrid = tarGrid
	if p.opts.Selection == SelectSeeded {
		p.rng = rand.New(rand.NewPCG(p.opts.Seed, uint64(p.target.ID)))
	}

	lastTarget := p.result.TargetGrains(p.target.ID) - 1
	n := out.Count(length)
	entries := make([]PlanEntry, 0, n)
	for j := range n {
		t := float64(j*out.Hop) / float64(p.opts.SampleRate)
		m := int(math.Round(t * float64(p.target.SampleRate) / float64(tarGrid.Hop)))
		m = max(0, min(m, lastTarget))

		cands := p.result.For(p.target.ID, m)
		if len(cands) == 0 {
			p.stats.unmatched++
			continue
		}
		chosen := p.selectCandidate(cands)

		src, err := p.source.Item(chosen.Source.Item)
		if err != nil {
			return nil, err
		}
		srcGrid, err := p.result.Grain(src.SampleRate)
		if err != nil {
			return nil, err
		}

		entry := PlanEntry{
			Grain:          j,
			Time:           t,
			TargetGrain:    m,
			Source:         chosen.Source,
			SourceCentre:   chosen.Source.Grain * srcGrid.Hop,
			Distance:       chosen.Distance,
			PitchRatio:     1,
			AmplitudeRatio: 1,
		}
		if p.opts.EnforceIntensity {
			ratio, ok := ClampRatio(p.amplitudeRatio(src, srcGrid, m, chosen.Source.Grain), p.opts.IntensityLimit)
			if !ok {
				p.stats.missingAmplitude++
			}
			entry.AmplitudeRatio = ratio
		}
		if p.opts.EnforceF0 {
			ratio, ok := ClampRatio(p.pitchRatio(src, srcGrid, m, chosen.Source.Grain), p.opts.F0Limit)
			if !ok {
				p.stats.missingPitch++
			}
			entry.PitchRatio = ratio
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// selectCandidate picks among the first MatchQuantity candidates
func (p *planner) selectCandidate(cands []match.Candidate) match.Candidate {
	eligible := cands[:min(p.opts.MatchQuantity, len(cands))]
	if p.rng == nil {
		return eligible[0]
	}
	return eligible[p.rng.IntN(len(eligible))]
}

// amplitudeRatio is target grain RMS over source grain RMS, NaN when the source is silent
func (p *planner) amplitudeRatio(src *corpus.Item, srcGrid analysis.GrainConfig, tarGrain, srcGrain int) float64 {
	t := analysis.RMS(p.tarGrid.Frame(p.target.Samples, tarGrain, nil))
	s := analysis.RMS(srcGrid.Frame(src.Samples, srcGrain, nil))
	if s == 0 {
		return math.NaN()
	}
	return t / s
}

// pitchRatio divides the median f0 of the target grain by that of the source grain
func (p *planner) pitchRatio(src *corpus.Item, srcGrid analysis.GrainConfig, tarGrain, srcGrain int) float64 {
	t := medianF0(p.target, p.tarGrid, tarGrain)
	s := medianF0(src, srcGrid, srcGrain)
	if s == 0 {
		return math.NaN()
	}
	return t / s
}

func medianF0(it *corpus.Item, grid analysis.GrainConfig, n int) float64 {
	r, ok := it.Analysis(analysis.KindF0)
	if !ok {
		return math.NaN()
	}
	toMS := 1000 / float64(it.SampleRate)
	start := float64(grid.Start(n)) * toMS
	end := float64(grid.Start(n)+grid.WindowSize) * toMS
	return analysis.Reduce(analysis.PolicyMedian, analysis.SpanValues(r, start, end))
}

// savePlan persists a plan as parallel row arrays
func savePlan(store storage.Store, name string, targetItem, sampleRate int, plan []PlanEntry) error {
	cols := map[string][]float64{
		"grain":           make([]float64, len(plan)),
		"time":            make([]float64, len(plan)),
		"target_grain":    make([]float64, len(plan)),
		"source_item":     make([]float64, len(plan)),
		"source_grain":    make([]float64, len(plan)),
		"source_centre":   make([]float64, len(plan)),
		"distance":        make([]float64, len(plan)),
		"pitch_ratio":     make([]float64, len(plan)),
		"amplitude_ratio": make([]float64, len(plan)),
	}
	for i, e := range plan {
		cols["grain"][i] = float64(e.Grain)
		cols["time"][i] = e.Time
		cols["target_grain"][i] = float64(e.TargetGrain)
		cols["source_item"][i] = float64(e.Source.Item)
		cols["source_grain"][i] = float64(e.Source.Grain)
		cols["source_centre"][i] = float64(e.SourceCentre)
		cols["distance"][i] = e.Distance
		cols["pitch_ratio"][i] = e.PitchRatio
		cols["amplitude_ratio"][i] = e.AmplitudeRatio
	}
	return store.WriteArrays(storage.Path{plansGroup, name}, cols, storage.Attributes{
		"target_item": targetItem,
		"sample_rate": sampleRate,
	})
}

// LoadPlan reads back a persisted plan
func LoadPlan(store storage.Store, name string) ([]PlanEntry, error) {
	path := storage.Path{plansGroup, name}
	names := []string{"grain", "time", "target_grain", "source_item", "source_grain", "source_centre", "distance", "pitch_ratio", "amplitude_ratio"}
	cols := make(map[string][]float64, len(names))
	for _, n := range names {
		col, _, err := store.ReadArray(path, n)
		if err != nil {
			return nil, err
		}
		if len(cols) > 0 && len(col) != len(cols["grain"]) {
			return nil, common.NewMosaicError(common.ErrCodeStorageRead, path.String(), "plan columns differ in length", nil)
		}
		cols[n] = col
	}
	plan := make([]PlanEntry, len(cols["grain"]))
	for i := range plan {
		plan[i] = PlanEntry{
			Grain:          int(cols["grain"][i]),
			Time:           cols["time"][i],
			TargetGrain:    int(cols["target_grain"][i]),
			Source:         match.GrainRef{Item: int(cols["source_item"][i]), Grain: int(cols["source_grain"][i])},
			SourceCentre:   int(cols["source_centre"][i]),
			Distance:       cols["distance"][i],
			PitchRatio:     cols["pitch_ratio"][i],
			AmplitudeRatio: cols["amplitude_ratio"][i],
		}
	}
	return plan, nil
}
