package translate

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"guideline-translator/internal/document"
	"guideline-translator/internal/types"
)

// ============================================================================
// Test Helpers
// ============================================================================

// mockBackend scripts responses per call. The respond function receives the
// 1-based call number and the extracted unit text.
type mockBackend struct {
	mu      sync.Mutex
	calls   int
	respond func(call int, text string) (string, int, error)
}

func (m *mockBackend) Complete(_ context.Context, _, userPrompt string) (string, int, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	return m.respond(call, unitText(userPrompt))
}

func (m *mockBackend) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// unitText strips the placeholder instruction prefix from a user prompt.
func unitText(userPrompt string) string {
	if !strings.HasPrefix(userPrompt, "The text contains") {
		return userPrompt
	}
	if idx := strings.Index(userPrompt, "\n\n"); idx != -1 {
		return userPrompt[idx+2:]
	}
	return userPrompt
}

// echoBackend returns every unit unchanged, which always satisfies the
// placeholder check.
func echoBackend() *mockBackend {
	return &mockBackend{respond: func(_ int, text string) (string, int, error) {
		return text, 10, nil
	}}
}

func newTestTranslator(b Backend, opts Options) *Translator {
	tr := New(b, NewGlossary(nil), opts)
	tr.retryDelay = time.Millisecond
	return tr
}

func sampleDocument() *document.Document {
	return &document.Document{
		Frontmatter: types.Frontmatter{Title: "In Vitro 3T3 NRU Phototoxicity Test"},
		Blocks: []document.Block{
			{Kind: document.KindPageBreak, Page: 1},
			{Kind: document.KindHeading, Level: 2, Text: "INTRODUCTION"},
			{Kind: document.KindParagraph, Text: `Cells were exposed to 5~$\text{J/cm}^2$ of simulated sunlight.`},
			{Kind: document.KindFigureRef, Ordinal: 1, Page: 1},
			{Kind: document.KindPageBreak, Page: 2},
			{Kind: document.KindParagraph, Text: `The $\text{IC}_{50}$ ratio determines the photoirritation factor.`},
			{Kind: document.KindTableRef, Ordinal: 1, Page: 2},
			{Kind: document.KindReferenceEntry, Index: 1, Text: "Spielmann, H. et al. (1998), phototoxicity study."},
		},
	}
}

// ============================================================================
// Structure Preservation Tests
// ============================================================================

func TestTranslatePreservesDocumentShape(t *testing.T) {
	src := sampleDocument()
	tr := newTestTranslator(echoBackend(), Options{})

	out, stats, err := tr.Translate(context.Background(), src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if len(out.Blocks) != len(src.Blocks) {
		t.Fatalf("block count = %d, want %d", len(out.Blocks), len(src.Blocks))
	}
	if !document.SameShape(src, out) {
		t.Error("translated document shape differs from source")
	}
	for i, blk := range out.Blocks {
		if blk.Fallback {
			t.Errorf("block %d unexpectedly marked as fallback", i)
		}
	}

	// Headings, paragraphs, and reference entries are translated.
	if stats.Units != 4 {
		t.Errorf("stats.Units = %d, want 4", stats.Units)
	}
	if stats.FailedUnits != 0 {
		t.Errorf("stats.FailedUnits = %d, want 0", stats.FailedUnits)
	}
	if stats.TokensUsed != 40 {
		t.Errorf("stats.TokensUsed = %d, want 40", stats.TokensUsed)
	}
}

func TestTranslateDoesNotMutateSource(t *testing.T) {
	src := sampleDocument()
	originalText := src.Blocks[2].Text

	backend := &mockBackend{respond: func(_ int, text string) (string, int, error) {
		return "已翻译 " + text, 5, nil
	}}
	tr := newTestTranslator(backend, Options{})

	out, _, err := tr.Translate(context.Background(), src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if src.Blocks[2].Text != originalText {
		t.Error("source document was mutated")
	}
	if !strings.HasPrefix(out.Blocks[2].Text, "已翻译 ") {
		t.Errorf("translated text = %q, want translated prefix", out.Blocks[2].Text)
	}
}

func TestTranslateRestoresMathByteForByte(t *testing.T) {
	src := sampleDocument()
	tr := newTestTranslator(echoBackend(), Options{})

	out, _, err := tr.Translate(context.Background(), src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if !strings.Contains(out.Blocks[2].Text, `$\text{J/cm}^2$`) {
		t.Errorf("block 2 lost its math span: %q", out.Blocks[2].Text)
	}
	if !strings.Contains(out.Blocks[5].Text, `$\text{IC}_{50}$`) {
		t.Errorf("block 5 lost its math span: %q", out.Blocks[5].Text)
	}
}

func TestTranslatePassesThroughNonTextBlocks(t *testing.T) {
	src := sampleDocument()
	backend := &mockBackend{respond: func(_ int, text string) (string, int, error) {
		return "翻译 " + text, 1, nil
	}}
	tr := newTestTranslator(backend, Options{})

	out, _, err := tr.Translate(context.Background(), src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	for _, i := range []int{0, 3, 4, 6} {
		if out.Blocks[i] != src.Blocks[i] {
			t.Errorf("block %d (%s) was modified: %+v", i, src.Blocks[i].Kind, out.Blocks[i])
		}
	}
}

// ============================================================================
// Failure Handling Tests
// ============================================================================

func TestTranslateRetriesIntegrityViolationVerbatim(t *testing.T) {
	src := &document.Document{Blocks: []document.Block{
		{Kind: document.KindParagraph, Text: `the $\text{IC}_{50}$ value`},
	}}

	backend := &mockBackend{respond: func(call int, text string) (string, int, error) {
		if call == 1 {
			return "占位符丢失了", 5, nil
		}
		return "数值 " + text, 5, nil
	}}
	tr := newTestTranslator(backend, Options{})

	out, stats, err := tr.Translate(context.Background(), src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if backend.callCount() != 2 {
		t.Errorf("backend calls = %d, want 2", backend.callCount())
	}
	if out.Blocks[0].Fallback {
		t.Error("block marked as fallback after successful retry")
	}
	if stats.FailedUnits != 0 {
		t.Errorf("stats.FailedUnits = %d, want 0", stats.FailedUnits)
	}
	if !strings.Contains(out.Blocks[0].Text, `$\text{IC}_{50}$`) {
		t.Errorf("math span not restored: %q", out.Blocks[0].Text)
	}
}

func TestTranslateFallsBackToSourceAfterRepeatedViolations(t *testing.T) {
	srcText := `the $\text{IC}_{50}$ value`
	src := &document.Document{Blocks: []document.Block{
		{Kind: document.KindParagraph, Text: srcText},
	}}

	backend := &mockBackend{respond: func(_ int, _ string) (string, int, error) {
		return "永远没有占位符", 5, nil
	}}
	tr := newTestTranslator(backend, Options{})

	out, stats, err := tr.Translate(context.Background(), src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if backend.callCount() != 2 {
		t.Errorf("backend calls = %d, want 2", backend.callCount())
	}
	if !out.Blocks[0].Fallback {
		t.Error("block not marked as fallback")
	}
	if out.Blocks[0].Text != srcText {
		t.Errorf("fallback text = %q, want source text %q", out.Blocks[0].Text, srcText)
	}
	if stats.FailedUnits != 1 {
		t.Errorf("stats.FailedUnits = %d, want 1", stats.FailedUnits)
	}
}

func TestTranslateRetriesTransientBackendErrors(t *testing.T) {
	src := &document.Document{Blocks: []document.Block{
		{Kind: document.KindParagraph, Text: "short paragraph"},
	}}

	backend := &mockBackend{respond: func(call int, text string) (string, int, error) {
		if call == 1 {
			return "", 0, types.NewAppError(types.ErrNetwork, "connection reset", nil)
		}
		return "第二次成功", 5, nil
	}}
	tr := newTestTranslator(backend, Options{})

	out, stats, err := tr.Translate(context.Background(), src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if backend.callCount() != 2 {
		t.Errorf("backend calls = %d, want 2", backend.callCount())
	}
	if out.Blocks[0].Fallback || stats.FailedUnits != 0 {
		t.Error("transient failure should recover without fallback")
	}
}

func TestTranslateUnitFailureDoesNotAbortDocument(t *testing.T) {
	src := &document.Document{Blocks: []document.Block{
		{Kind: document.KindParagraph, Text: "first paragraph"},
		{Kind: document.KindParagraph, Text: "second paragraph"},
	}}

	backend := &mockBackend{respond: func(_ int, text string) (string, int, error) {
		if strings.Contains(text, "first") {
			return "", 0, types.NewAppError(types.ErrBackend, "invalid request", nil)
		}
		return "第二段", 5, nil
	}}
	tr := newTestTranslator(backend, Options{Concurrency: 1})

	out, stats, err := tr.Translate(context.Background(), src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if !out.Blocks[0].Fallback {
		t.Error("failed unit's block not marked as fallback")
	}
	if out.Blocks[0].Text != "first paragraph" {
		t.Errorf("fallback text = %q, want source text", out.Blocks[0].Text)
	}
	if out.Blocks[1].Fallback {
		t.Error("healthy unit's block marked as fallback")
	}
	if out.Blocks[1].Text != "第二段" {
		t.Errorf("translated text = %q, want 第二段", out.Blocks[1].Text)
	}
	if stats.FailedUnits != 1 {
		t.Errorf("stats.FailedUnits = %d, want 1", stats.FailedUnits)
	}
}

// ============================================================================
// Segmentation Tests
// ============================================================================

func TestSplitSegments(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		wantSegs int
	}{
		{
			name:     "short text is one segment",
			input:    "fits in one unit",
			max:      100,
			wantSegs: 1,
		},
		{
			name:     "long text splits at sentence boundaries",
			input:    strings.Repeat("One sentence here. ", 20),
			max:      100,
			wantSegs: 4,
		},
		{
			name:     "text without spaces splits at the limit",
			input:    strings.Repeat("x", 250),
			max:      100,
			wantSegs: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := splitSegments(tt.input, tt.max)
			if len(segs) != tt.wantSegs {
				t.Errorf("got %d segments, want %d", len(segs), tt.wantSegs)
			}
			for i, seg := range segs {
				if len(seg) > tt.max {
					t.Errorf("segment %d has %d bytes, exceeds max %d", i, len(seg), tt.max)
				}
			}
			if strings.Join(segs, "") != tt.input {
				t.Error("concatenated segments differ from input")
			}
		})
	}
}

func TestSplitSegmentsKeepsMathSpansIntact(t *testing.T) {
	prefix := strings.Repeat("a ", 45)
	input := prefix + `$\text{PIF} = 5$ trailing words afterwards`

	segs := splitSegments(input, 100)
	if len(segs) < 2 {
		t.Fatalf("expected a split, got %d segments", len(segs))
	}
	for i, seg := range segs {
		if strings.Count(seg, "$")%2 != 0 {
			t.Errorf("segment %d splits a math span: %q", i, seg)
		}
	}
	if strings.Join(segs, "") != input {
		t.Error("concatenated segments differ from input")
	}
}

func TestTranslateSegmentsLongBlocks(t *testing.T) {
	longText := strings.Repeat("A full sentence about exposure conditions. ", 10)
	src := &document.Document{Blocks: []document.Block{
		{Kind: document.KindParagraph, Text: longText},
	}}

	tr := newTestTranslator(echoBackend(), Options{MaxUnitSize: 100})

	out, stats, err := tr.Translate(context.Background(), src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if stats.Units < 2 {
		t.Errorf("stats.Units = %d, want at least 2", stats.Units)
	}
	if len(out.Blocks) != 1 {
		t.Fatalf("block count = %d, want 1", len(out.Blocks))
	}
	if out.Blocks[0].Text != longText {
		t.Error("echo translation of segmented block does not reassemble to the original")
	}
}

// ============================================================================
// Glossary Integration Tests
// ============================================================================

func TestTranslateAppliesGlossaryAfterRestore(t *testing.T) {
	src := &document.Document{Blocks: []document.Block{
		{Kind: document.KindParagraph, Text: "the test substance showed phototoxicity"},
	}}

	glossary := NewGlossary([]GlossaryEntry{
		{Source: "test substance", Target: "受试物"},
		{Source: "phototoxicity", Target: "光毒性"},
	})
	backend := echoBackend()
	tr := New(backend, glossary, Options{})
	tr.retryDelay = time.Millisecond

	out, _, err := tr.Translate(context.Background(), src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	want := "the 受试物 showed 光毒性"
	if out.Blocks[0].Text != want {
		t.Errorf("translated text = %q, want %q", out.Blocks[0].Text, want)
	}
}
