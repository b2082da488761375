package extract

import (
	"sort"

	"guideline-translator/internal/logger"
)

// fragment is one positioned text run on a row.
type fragment struct {
	x        float64
	fontSize float64
	text     string
}

// textRow groups the fragments sharing a baseline, top-to-bottom ordered.
type textRow struct {
	y     float64
	frags []fragment
}

// tableDetector finds tabular regions by alignment analysis: runs of
// consecutive rows whose fragments form two or more columns with consistent
// X positions.
type tableDetector struct {
	// minColumnGap is the horizontal distance in points that separates two
	// fragments into distinct columns.
	minColumnGap float64
	// minRows is the shortest run of aligned multi-column rows accepted as
	// a table.
	minRows int
	// alignTolerance is the X drift allowed between column positions of
	// neighboring rows.
	alignTolerance float64
	// padding widens the detected bounding box on all sides.
	padding float64
}

func newTableDetector() *tableDetector {
	return &tableDetector{
		minColumnGap:   40.0,
		minRows:        3,
		alignTolerance: 8.0,
		padding:        6.0,
	}
}

// detect returns the table regions on one page, in top-to-bottom order with
// 1-based per-page ordinals. rows must already be in reading order.
func (d *tableDetector) detect(rows []textRow, pageNum int) []TableRegion {
	var regions []TableRegion
	var run []textRow

	flush := func() {
		if len(run) >= d.minRows {
			regions = append(regions, d.regionFor(run, pageNum))
		}
		run = nil
	}

	for _, row := range rows {
		cols := d.columnStarts(row)
		if len(cols) < 2 {
			flush()
			continue
		}
		if len(run) > 0 && !d.aligned(d.columnStarts(run[len(run)-1]), cols) {
			flush()
		}
		run = append(run, row)
	}
	flush()

	for i := range regions {
		regions[i].Ordinal = i + 1
	}
	if len(regions) > 0 {
		logger.Debug("table regions detected",
			logger.Int("page", pageNum),
			logger.Int("regions", len(regions)))
	}
	return regions
}

// columnStarts reduces a row to the X positions where columns begin:
// fragment starts separated from the previous fragment by at least
// minColumnGap.
func (d *tableDetector) columnStarts(row textRow) []float64 {
	xs := make([]float64, 0, len(row.frags))
	for _, f := range row.frags {
		xs = append(xs, f.x)
	}
	sort.Float64s(xs)

	starts := []float64{xs[0]}
	for i := 1; i < len(xs); i++ {
		if xs[i]-xs[i-1] >= d.minColumnGap {
			starts = append(starts, xs[i])
		}
	}
	return starts
}

// aligned reports whether two rows' column starts agree within tolerance.
// Column counts may differ by one to tolerate merged header cells.
func (d *tableDetector) aligned(a, b []float64) bool {
	diff := len(a) - len(b)
	if diff < -1 || diff > 1 {
		return false
	}
	// Every column start of the shorter row must have a near match in the
	// longer one.
	short, long := a, b
	if len(b) < len(a) {
		short, long = b, a
	}
	for _, x := range short {
		found := false
		for _, y := range long {
			if x-y <= d.alignTolerance && y-x <= d.alignTolerance {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// regionFor computes the padded bounding box of an aligned run of rows.
func (d *tableDetector) regionFor(run []textRow, pageNum int) TableRegion {
	minX, maxX := run[0].frags[0].x, run[0].frags[0].x
	minY, maxY := run[0].y, run[0].y
	var maxSize float64

	for _, row := range run {
		if row.y < minY {
			minY = row.y
		}
		if row.y > maxY {
			maxY = row.y
		}
		for _, f := range row.frags {
			if f.x < minX {
				minX = f.x
			}
			// Right edge estimated from text length and font size; the
			// library reports run starts, not glyph extents.
			right := f.x + float64(len(f.text))*f.fontSize*0.55
			if right > maxX {
				maxX = right
			}
			if f.fontSize > maxSize {
				maxSize = f.fontSize
			}
		}
	}

	lineHeight := maxSize * 1.2
	if lineHeight <= 0 {
		lineHeight = 12.0
	}

	return TableRegion{
		Page: pageNum,
		BBox: [4]float64{
			minX - d.padding,
			minY - d.padding,
			maxX + d.padding,
			maxY + lineHeight + d.padding,
		},
	}
}
