package assets

import (
	"image"
	"image/color"
	"sync"
	"testing"
)

// solidImage returns a w x h image filled with a single color.
func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// contentImage returns an image with enough variation to survive filtering:
// alternating mid-gray bands.
func contentImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(80)
			if (x/4)%2 == 0 {
				v = 180
			}
			img.Set(x, y, color.Gray{Y: v})
		}
	}
	return img
}

// ============ Classify tests ============

func TestClassifyDropsUniform(t *testing.T) {
	d := Classify(Candidate{Image: solidImage(32, 32, color.Gray{Y: 128}), Page: 3})
	if d.Keep {
		t.Fatalf("solid image kept")
	}
	if d.Reason != DropUniform {
		t.Errorf("Reason = %q, want %q", d.Reason, DropUniform)
	}
}

func TestClassifyDropsDominantExtreme(t *testing.T) {
	// Nearly all white with a thin dark stripe: variance clears the uniform
	// check but near-white pixels dominate.
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if y == 0 {
				img.Set(x, y, color.Gray{Y: 0})
			} else {
				img.Set(x, y, color.Gray{Y: 255})
			}
		}
	}

	d := Classify(Candidate{Image: img, Page: 4})
	if d.Keep {
		t.Fatalf("near-blank image kept")
	}
	if d.Reason != DropDominantExtreme {
		t.Errorf("Reason = %q, want %q", d.Reason, DropDominantExtreme)
	}
}

func TestClassifyDropsCoverPage(t *testing.T) {
	d := Classify(Candidate{Image: contentImage(64, 64), Page: 1})
	if d.Keep {
		t.Fatalf("first-page image kept")
	}
	if d.Reason != DropCoverPage {
		t.Errorf("Reason = %q, want %q", d.Reason, DropCoverPage)
	}
}

func TestClassifyKeepsContentAsFigure(t *testing.T) {
	d := Classify(Candidate{Image: contentImage(64, 64), Page: 2})
	if !d.Keep || d.Kind != KindFigure {
		t.Errorf("Classify = %+v, want Keep(figure)", d)
	}
}

func TestClassifyTableCropBypassesFilter(t *testing.T) {
	// A geometrically requested table crop is kept even if its content would
	// otherwise be dropped, including on the first page.
	d := Classify(Candidate{Image: solidImage(16, 16, color.White), Page: 1, FromTableRegion: true})
	if !d.Keep || d.Kind != KindTable {
		t.Errorf("Classify = %+v, want Keep(table)", d)
	}
}

// ============ Registry ordinal tests ============

func TestRegistryDenseOrdinals(t *testing.T) {
	reg := NewRegistry()

	candidates := []Candidate{
		{Image: contentImage(32, 32), Page: 2, Position: 0},
		{Image: solidImage(32, 32, color.White), Page: 2, Position: 1}, // dropped
		{Image: contentImage(32, 32), Page: 3, Position: 0},
		{Image: solidImage(16, 16, color.White), Page: 3, Position: 1, FromTableRegion: true},
		{Image: contentImage(32, 32), Page: 5, Position: 0},
		{Image: solidImage(16, 16, color.White), Page: 5, Position: 1, FromTableRegion: true},
	}
	for _, c := range candidates {
		reg.Add(c, Classify(c))
	}
	reg.Finalize()

	if got := reg.Count(KindFigure); got != 3 {
		t.Errorf("figure count = %d, want 3", got)
	}
	if got := reg.Count(KindTable); got != 2 {
		t.Errorf("table count = %d, want 2", got)
	}
	if got := reg.Dropped(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}

	// Ordinals are dense and gap-free per kind: the n-th kept asset of a
	// kind has ordinal n, regardless of drops in between.
	for n := 1; n <= 3; n++ {
		if !reg.Has(KindFigure, n) {
			t.Errorf("missing figure ordinal %d", n)
		}
	}
	for n := 1; n <= 2; n++ {
		if !reg.Has(KindTable, n) {
			t.Errorf("missing table ordinal %d", n)
		}
	}
	if reg.Has(KindFigure, 4) {
		t.Errorf("unexpected figure ordinal 4")
	}

	// Assignment order follows page then position.
	a, _ := reg.Get(KindFigure, 1)
	if a.Page != 2 {
		t.Errorf("figure_1 from page %d, want 2", a.Page)
	}
	a, _ = reg.Get(KindFigure, 3)
	if a.Page != 5 {
		t.Errorf("figure_3 from page %d, want 5", a.Page)
	}
}

func TestRegistryConcurrentAdd(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for page := 2; page <= 21; page++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			c := Candidate{Image: contentImage(16, 16), Page: p, Position: 0}
			reg.Add(c, Classify(c))
		}(page)
	}
	wg.Wait()
	reg.Finalize()

	if got := reg.Count(KindFigure); got != 20 {
		t.Fatalf("figure count = %d, want 20", got)
	}
	// Deterministic order after parallel classification: ordinal follows
	// page order, not goroutine completion order.
	for n := 1; n <= 20; n++ {
		a, ok := reg.Get(KindFigure, n)
		if !ok {
			t.Fatalf("missing ordinal %d", n)
		}
		if a.Page != n+1 {
			t.Errorf("figure_%d from page %d, want %d", n, a.Page, n+1)
		}
	}
}

func TestAssetFileName(t *testing.T) {
	if got := (Asset{Kind: KindFigure, Ordinal: 7}).FileName(); got != "figure_7.png" {
		t.Errorf("FileName = %q", got)
	}
	if got := (Asset{Kind: KindTable, Ordinal: 2}).FileName(); got != "table_2.png" {
		t.Errorf("FileName = %q", got)
	}
}
