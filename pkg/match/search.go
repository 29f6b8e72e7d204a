package match

import (
	"container/heap"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// Candidate is a ranked source grain for one target grain
type Candidate struct {
	Source   GrainRef `json:"source"`
	Distance float64  `json:"distance"`
}

// ranked carries the squared distance used for ordering
type ranked struct {
	ref GrainRef
	sq  float64
}

// rankLess is the total order of candidates: distance ascending with NaN last,
// then source item, then source grain
func rankLess(a, b ranked) bool {
	an, bn := math.IsNaN(a.sq), math.IsNaN(b.sq)
	if an != bn {
		return bn
	}
	if !an && a.sq != b.sq {
		return a.sq < b.sq
	}
	if a.ref.Item != b.ref.Item {
		return a.ref.Item < b.ref.Item
	}
	return a.ref.Grain < b.ref.Grain
}

func rankCmp(a, b ranked) int {
	switch {
	case rankLess(a, b):
		return -1
	case rankLess(b, a):
		return 1
	}
	return 0
}

func toCandidates(rs []ranked) []Candidate {
	out := make([]Candidate, len(rs))
	for i, r := range rs {
		out[i] = Candidate{Source: r.ref, Distance: math.Sqrt(r.sq)}
	}
	return out
}

// Searcher returns the k nearest source grains of a query descriptor
type Searcher interface {
	Search(q []float64, k int) []Candidate
}

// NewSearcher indexes the source descriptors with method
func NewSearcher(method Method, source []Descriptor) Searcher {
	if method == MethodBrute {
		return &bruteSearcher{points: source}
	}
	return newKDSearcher(source)
}

type bruteSearcher struct {
	points []Descriptor
}

func (b *bruteSearcher) Search(q []float64, k int) []Candidate {
	all := make([]ranked, len(b.points))
	for i, p := range b.points {
		all[i] = ranked{ref: p.Ref, sq: sqDist(q, p.Vector)}
	}
	slices.SortFunc(all, rankCmp)
	return toCandidates(all[:min(k, len(all))])
}

// kdSearcher answers exact queries from a gonum k-d tree over the fully defined
// descriptors. Descriptors containing NaN have undefined distance to everything
// and are appended after the tree results in (item, grain) order.
type kdSearcher struct {
	tree      *kdtree.Tree
	finite    int
	undefined []Descriptor
	all       []Descriptor
}

func newKDSearcher(source []Descriptor) *kdSearcher {
	s := &kdSearcher{all: source}
	var pts kdPoints
	for _, d := range source {
		if hasNaN(d.Vector) {
			s.undefined = append(s.undefined, d)
			continue
		}
		pts = append(pts, kdPoint(d))
	}
	slices.SortFunc(s.undefined, func(a, b Descriptor) int {
		return rankCmp(ranked{ref: a.Ref, sq: math.NaN()}, ranked{ref: b.Ref, sq: math.NaN()})
	})
	s.finite = len(pts)
	if len(pts) > 0 {
		s.tree = kdtree.New(pts, false)
	}
	return s
}

func (s *kdSearcher) Search(q []float64, k int) []Candidate {
	if hasNaN(q) {
		all := make([]ranked, len(s.all))
		for i, d := range s.all {
			all[i] = ranked{ref: d.Ref, sq: math.NaN()}
		}
		slices.SortFunc(all, rankCmp)
		return toCandidates(all[:min(k, len(all))])
	}

	var out []ranked
	if s.tree != nil {
		keeper := newRankKeeper(min(k, s.finite))
		s.tree.NearestSet(keeper, kdPoint{Vector: q, Ref: GrainRef{Item: -1, Grain: -1}})
		out = make([]ranked, 0, k)
		for _, c := range keeper.items {
			if p, ok := c.Comparable.(kdPoint); ok && p.Ref.Item >= 0 {
				out = append(out, ranked{ref: p.Ref, sq: c.Dist})
			}
		}
		slices.SortFunc(out, rankCmp)
	}
	for _, d := range s.undefined {
		if len(out) >= k {
			break
		}
		out = append(out, ranked{ref: d.Ref, sq: math.NaN()})
	}
	return toCandidates(out)
}

type kdPoint Descriptor

func (p kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.Vector[d] - c.(kdPoint).Vector[d]
}

func (p kdPoint) Dims() int { return len(p.Vector) }

func (p kdPoint) Distance(c kdtree.Comparable) float64 {
	return sqDist(p.Vector, c.(kdPoint).Vector)
}

type kdPoints []kdPoint

func (p kdPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p kdPoints) Len() int                              { return len(p) }
func (p kdPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }
func (p kdPoints) Pivot(d kdtree.Dim) int {
	return kdPlane{Dim: d, points: p}.pivot()
}

type kdPlane struct {
	kdtree.Dim
	points kdPoints
}

func (p kdPlane) Less(i, j int) bool {
	return p.points[i].Vector[p.Dim] < p.points[j].Vector[p.Dim]
}
func (p kdPlane) Len() int      { return len(p.points) }
func (p kdPlane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }
func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	return kdPlane{Dim: p.Dim, points: p.points[start:end]}
}
func (p kdPlane) pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

// rankKeeper retains the k best points under rankLess. Its Max is nudged up by
// one ulp so subtrees holding points equidistant to the current worst are still
// visited and the tie-break can see them.
type rankKeeper struct {
	k     int
	items []kdtree.ComparableDist
}

func newRankKeeper(k int) *rankKeeper {
	return &rankKeeper{k: k, items: make([]kdtree.ComparableDist, 0, k)}
}

func toRanked(c kdtree.ComparableDist) ranked {
	return ranked{ref: c.Comparable.(kdPoint).Ref, sq: c.Dist}
}

func (h *rankKeeper) Keep(c kdtree.ComparableDist) {
	if h.k <= 0 {
		return
	}
	if len(h.items) < h.k {
		heap.Push(h, c)
		return
	}
	if rankLess(toRanked(c), toRanked(h.items[0])) {
		h.items[0] = c
		heap.Fix(h, 0)
	}
}

func (h *rankKeeper) Max() kdtree.ComparableDist {
	if len(h.items) < h.k || len(h.items) == 0 {
		// A non-nil comparable stops the tree from treating this as its own sentinel
		return kdtree.ComparableDist{Comparable: kdPoint{Ref: GrainRef{Item: -1}}, Dist: math.Inf(1)}
	}
	top := h.items[0]
	return kdtree.ComparableDist{Comparable: top.Comparable, Dist: math.Nextafter(top.Dist, math.Inf(1))}
}

// heap.Interface, ordered worst first
func (h *rankKeeper) Len() int { return len(h.items) }
func (h *rankKeeper) Less(i, j int) bool {
	return rankLess(toRanked(h.items[j]), toRanked(h.items[i]))
}
func (h *rankKeeper) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *rankKeeper) Push(x any)    { h.items = append(h.items, x.(kdtree.ComparableDist)) }
func (h *rankKeeper) Pop() any {
	last := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return last
}
