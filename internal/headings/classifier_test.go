package headings

import "testing"

// ============ Classify tests ============

func TestClassifyAllCapsHeading(t *testing.T) {
	line := "INITIAL CONSIDERATIONS HERE"
	ctx := Context{
		Prev: "",
		Next: "The test substance was dissolved in buffered saline and applied to the monolayer for the full exposure period.",
	}

	r := Classify(line, ctx)
	if r.Level != Level3 {
		t.Errorf("all-caps line before prose: Level = %d, want %d (score %+v)", r.Level, Level3, r.Score)
	}
}

func TestClassifyShortRunDowngrade(t *testing.T) {
	// The same all-caps line followed by another short line is presumed to
	// be part of a list and stays body text.
	line := "INITIAL CONSIDERATIONS HERE"
	ctx := Context{
		Prev: "",
		Next: "SECOND SHORT LINE",
	}

	r := Classify(line, ctx)
	if r.Level != LevelBody {
		t.Errorf("short-run context: Level = %d, want body (score %+v)", r.Level, r.Score)
	}
}

func TestClassifyNumberedLevels(t *testing.T) {
	tests := []struct {
		line string
		want int
	}{
		{"1. Scope of application", Level2},
		{"2.3 Preparation of cultures", Level3},
		{"4.1.2 Irradiation conditions", Level4},
	}

	ctx := Context{
		Prev: "",
		Next: "Cells are seeded at a fixed density and allowed to attach before any treatment is applied to the plate.",
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			r := Classify(tt.line, ctx)
			if r.Level != tt.want {
				t.Errorf("Classify(%q).Level = %d, want %d (score %+v)", tt.line, r.Level, tt.want, r.Score)
			}
		})
	}
}

func TestClassifyVocabularyMatch(t *testing.T) {
	ctx := Context{
		Prev: "",
		Next: "This guideline describes an in vitro procedure used to identify the hazard potential of chemicals.",
	}

	tests := []struct {
		line string
		want int
	}{
		{"Introduction", Level3},
		{"Principle of the Test Method", Level3},
		{"LITERATURE", Level3},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			r := Classify(tt.line, ctx)
			if r.Level != tt.want {
				t.Errorf("Classify(%q).Level = %d, want %d (score %+v)", tt.line, r.Level, tt.want, r.Score)
			}
		})
	}
}

func TestClassifyBodyText(t *testing.T) {
	tests := []struct {
		name string
		line string
		ctx  Context
	}{
		{
			name: "ordinary sentence",
			line: "The cells were incubated for 24 hours before the viability assay was carried out on each plate.",
			ctx:  Context{Prev: "", Next: "Afterwards the medium was replaced."},
		},
		{
			name: "short line with trailing period",
			line: "Samples were discarded.",
			ctx:  Context{Prev: "", Next: "The remaining wells were scored by two independent readers using the standard scale."},
		},
		{
			name: "short mixed-case fragment",
			line: "the following day",
			ctx:  Context{Prev: "", Next: "All plates were read at the same wavelength to keep the absorbance values comparable across runs."},
		},
		{
			name: "reference list entry",
			line: "(3) Spielmann, H. et al., results of a validation study",
			ctx:  Context{Prev: "", Next: "(4) Another numbered entry follows directly here"},
		},
		{
			name: "blank line",
			line: "   ",
			ctx:  Context{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Classify(tt.line, tt.ctx)
			if r.Level != LevelBody {
				t.Errorf("Classify(%q).Level = %d, want body (score %+v)", tt.line, r.Level, r.Score)
			}
		})
	}
}

func TestClassifyAmbiguousCounted(t *testing.T) {
	// A short mixed-case fragment scores just under the threshold and must
	// be flagged ambiguous while still resolving to body text.
	r := Classify("the following day", Context{
		Prev: "",
		Next: "All plates were read at the same wavelength to keep the absorbance values comparable across runs.",
	})
	if r.Level != LevelBody {
		t.Fatalf("Level = %d, want body", r.Level)
	}
	if !r.Ambiguous {
		t.Errorf("near-threshold line not flagged ambiguous (score %+v)", r.Score)
	}
}

// ============ ClassifyPage tests ============

func TestClassifyPageUsesBoundaryContext(t *testing.T) {
	// The candidate sits on the last line of a page; whether it is a heading
	// depends on the first line of the next page.
	lines := []string{
		"EQUIPMENT AND REAGENTS",
	}

	prose := "Each concentration is tested in six replicate wells and the experiment is repeated on a separate day."
	withProse := ClassifyPage(lines, "", prose)
	if !withProse[0].IsHeading() {
		t.Errorf("boundary prose ignored: %+v", withProse[0].Score)
	}

	// A short line at the top of the next page marks a list continuing
	// across the page break.
	withShort := ClassifyPage(lines, "", "ANOTHER SHORT LINE")
	if withShort[0].IsHeading() {
		t.Errorf("short-run downgrade lost across page boundary: %+v", withShort[0].Score)
	}
}

func TestClassifyPageBackToBackHeadings(t *testing.T) {
	// A heading directly above keeps the separation signal alive, the same
	// as a blank line would.
	lines := []string{
		"PROCEDURE",
		"EQUIPMENT AND REAGENTS",
		"",
		"Each concentration is tested in six replicate wells and the experiment is repeated on a separate day.",
	}
	results := ClassifyPage(lines, "", "")

	if !results[0].IsHeading() {
		t.Fatalf("PROCEDURE not classified as a heading: %+v", results[0].Score)
	}
	if !results[1].IsHeading() {
		t.Errorf("heading directly below another heading lost the separation signal: %+v", results[1].Score)
	}

	// The same pair split across a page break.
	nextPage := ClassifyPage(lines[1:], "PROCEDURE", "")
	if !nextPage[0].IsHeading() {
		t.Errorf("heading after a heading on the previous page lost the signal: %+v", nextPage[0].Score)
	}
}

func TestClassifyPageInteriorContext(t *testing.T) {
	lines := []string{
		"",
		"RESULTS",
		"Mean viability is expressed relative to the untreated solvent controls included on every plate.",
	}
	results := ClassifyPage(lines, "", "")

	if results[0].IsHeading() {
		t.Errorf("blank line classified as heading")
	}
	if results[1].Level != Level3 {
		t.Errorf("RESULTS: Level = %d, want %d (score %+v)", results[1].Level, Level3, results[1].Score)
	}
	if results[2].IsHeading() {
		t.Errorf("prose line classified as heading (score %+v)", results[2].Score)
	}
}
