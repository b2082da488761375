// Package assets classifies extracted raster images as figures or table
// screenshots, drops meaningless ones, and assigns the dense per-kind
// ordinals that document anchors reference.
package assets

import (
	"fmt"
	"image"
	"math"
	"sort"
	"sync"

	"guideline-translator/internal/logger"
)

// Kind distinguishes the two classes of kept assets.
type Kind int

const (
	KindFigure Kind = iota
	KindTable
)

// String returns the asset kind name used in output file names.
func (k Kind) String() string {
	if k == KindTable {
		return "table"
	}
	return "figure"
}

// DropReason explains why a candidate was rejected.
type DropReason string

const (
	DropNone            DropReason = ""
	DropUniform         DropReason = "uniform"
	DropDominantExtreme DropReason = "dominant-extreme"
	DropCoverPage       DropReason = "cover-page"
)

// Classification thresholds over 8-bit luminance values.
const (
	// varianceMin: below this the image is a solid fill.
	varianceMin = 1.0
	// nearBlackMax / nearWhiteMin bound the extreme luminance bands.
	nearBlackMax = 30.0
	nearWhiteMin = 240.0
	// dominanceThreshold: fraction of pixels in one extreme band above
	// which the image carries no content.
	dominanceThreshold = 0.98
)

// Decision is the outcome of classifying one candidate image.
type Decision struct {
	Keep   bool
	Kind   Kind
	Reason DropReason
}

// Candidate is one image awaiting classification and ordinal assignment.
// Position orders candidates extracted from the same page.
type Candidate struct {
	Image    image.Image
	Page     int
	Position int
	// FromTableRegion marks geometrically requested table crops, which
	// bypass content filtering entirely.
	FromTableRegion bool
}

// Asset is a kept candidate with its final ordinal.
type Asset struct {
	Kind    Kind
	Ordinal int
	Page    int
	Image   image.Image
}

// FileName returns the output image file name for the asset.
func (a Asset) FileName() string {
	return fmt.Sprintf("%s_%d.png", a.Kind, a.Ordinal)
}

// Classify decides keep/drop for a single candidate. It is a pure function
// and safe to call concurrently; ordinal assignment happens separately in
// Registry.Finalize.
func Classify(c Candidate) Decision {
	if c.FromTableRegion {
		return Decision{Keep: true, Kind: KindTable}
	}
	if c.Page == 1 {
		return Decision{Keep: false, Reason: DropCoverPage}
	}

	variance, blackFrac, whiteFrac := luminanceStats(c.Image)
	if variance < varianceMin {
		return Decision{Keep: false, Reason: DropUniform}
	}
	if blackFrac > dominanceThreshold || whiteFrac > dominanceThreshold {
		return Decision{Keep: false, Reason: DropDominantExtreme}
	}
	return Decision{Keep: true, Kind: KindFigure}
}

// luminanceStats computes the pixel luminance variance and the fractions of
// pixels in the near-black and near-white bands.
func luminanceStats(img image.Image) (variance, blackFrac, whiteFrac float64) {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0, 0, 0
	}

	var sum, sumSq float64
	var black, white int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma, scaled back to 8 bits.
			lum := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
			sum += lum
			sumSq += lum * lum
			if lum <= nearBlackMax {
				black++
			} else if lum >= nearWhiteMin {
				white++
			}
		}
	}

	n := float64(total)
	mean := sum / n
	variance = math.Max(0, sumSq/n-mean*mean)
	return variance, float64(black) / n, float64(white) / n
}

// Registry collects classification results and performs the sequential
// ordinal-assignment pass. Candidates may be added from multiple goroutines;
// Finalize must be called once, after all Add calls have completed.
type Registry struct {
	mu        sync.Mutex
	pending   []pendingAsset
	kept      []Asset
	dropped   int
	finalized bool
	byKind    map[Kind]map[int]Asset
}

type pendingAsset struct {
	kind     Kind
	page     int
	position int
	image    image.Image
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKind: map[Kind]map[int]Asset{
		KindFigure: {},
		KindTable:  {},
	}}
}

// Add records the decision for one candidate. Kept candidates receive their
// ordinal later, in Finalize.
func (r *Registry) Add(c Candidate, d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !d.Keep {
		r.dropped++
		logger.Debug("asset dropped",
			logger.Int("page", c.Page),
			logger.Int("position", c.Position),
			logger.String("reason", string(d.Reason)))
		return
	}
	r.pending = append(r.pending, pendingAsset{kind: d.Kind, page: c.Page, position: c.Position, image: c.Image})
}

// Finalize sorts kept assets into deterministic page/position order and
// assigns dense 1-based ordinals per kind. Dropped candidates never consume
// an ordinal.
func (r *Registry) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return
	}

	sort.SliceStable(r.pending, func(i, j int) bool {
		if r.pending[i].page != r.pending[j].page {
			return r.pending[i].page < r.pending[j].page
		}
		return r.pending[i].position < r.pending[j].position
	})

	counters := map[Kind]int{}
	for _, p := range r.pending {
		counters[p.kind]++
		a := Asset{Kind: p.kind, Ordinal: counters[p.kind], Page: p.page, Image: p.image}
		r.kept = append(r.kept, a)
		r.byKind[a.Kind][a.Ordinal] = a
	}
	r.pending = nil
	r.finalized = true

	logger.Info("asset ordinals assigned",
		logger.Int("figures", counters[KindFigure]),
		logger.Int("tables", counters[KindTable]),
		logger.Int("dropped", r.dropped))
}

// Has reports whether a kept asset of the given kind and ordinal exists.
func (r *Registry) Has(kind Kind, ordinal int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byKind[kind][ordinal]
	return ok
}

// Get returns the kept asset of the given kind and ordinal.
func (r *Registry) Get(kind Kind, ordinal int) (Asset, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byKind[kind][ordinal]
	return a, ok
}

// Kept returns all kept assets in ordinal-assignment order.
func (r *Registry) Kept() []Asset {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Asset, len(r.kept))
	copy(out, r.kept)
	return out
}

// KeptOnPage returns the kept assets of one kind extracted from a page, in
// ordinal order.
func (r *Registry) KeptOnPage(kind Kind, page int) []Asset {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Asset
	for _, a := range r.kept {
		if a.Kind == kind && a.Page == page {
			out = append(out, a)
		}
	}
	return out
}

// Dropped returns the number of rejected candidates.
func (r *Registry) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Count returns the number of kept assets of a kind.
func (r *Registry) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKind[kind])
}
