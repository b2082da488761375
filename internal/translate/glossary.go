package translate

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"guideline-translator/internal/logger"
	"guideline-translator/internal/types"
)

// GlossaryEntry maps a source-language term to its fixed target-language rendering.
type GlossaryEntry struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Glossary enforces consistent terminology on translated text. Matching is
// case-sensitive, longest-match-first, and scans left to right without
// rescanning inserted target text.
type Glossary struct {
	entries []GlossaryEntry
}

// DefaultEntries returns the built-in English to Simplified Chinese glossary
// for test-guideline terminology. A user glossary file can extend or override it.
func DefaultEntries() []GlossaryEntry {
	return []GlossaryEntry{
		{Source: "phototoxicity", Target: "光毒性"},
		{Source: "photoirritation factor", Target: "光刺激因子"},
		{Source: "mean photo effect", Target: "平均光效应"},
		{Source: "test substance", Target: "受试物"},
		{Source: "test guideline", Target: "试验指南"},
		{Source: "test method", Target: "试验方法"},
		{Source: "test", Target: "试验"},
		{Source: "cytotoxicity", Target: "细胞毒性"},
		{Source: "cell viability", Target: "细胞活力"},
		{Source: "neutral red uptake", Target: "中性红摄取"},
		{Source: "positive control", Target: "阳性对照"},
		{Source: "negative control", Target: "阴性对照"},
		{Source: "vehicle control", Target: "溶剂对照"},
		{Source: "solvent control", Target: "溶剂对照"},
		{Source: "dose-response", Target: "剂量反应"},
		{Source: "irradiation", Target: "辐照"},
		{Source: "irradiance", Target: "辐照度"},
		{Source: "chlorpromazine", Target: "氯丙嗪"},
		{Source: "balb/c 3t3", Target: "BALB/c 3T3"},
		{Source: "BALB/c 3T3", Target: "BALB/c 3T3"},
	}
}

// LoadEntries reads glossary entries from a JSON file. The file holds an
// array of {"source": ..., "target": ...} objects.
func LoadEntries(path string) ([]GlossaryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrConfig, "failed to read glossary file", err)
	}

	var entries []GlossaryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, types.NewAppError(types.ErrConfig, "failed to parse glossary file", err)
	}

	logger.Info("loaded user glossary", logger.String("path", path), logger.Int("entries", len(entries)))
	return entries, nil
}

// NewGlossary builds a glossary from the given entries. Later entries with
// the same source override earlier ones, so user entries should be appended
// after DefaultEntries.
func NewGlossary(entries []GlossaryEntry) *Glossary {
	bySource := make(map[string]string, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Source == "" {
			continue
		}
		if _, seen := bySource[e.Source]; !seen {
			order = append(order, e.Source)
		}
		bySource[e.Source] = e.Target
	}

	merged := make([]GlossaryEntry, 0, len(order))
	for _, src := range order {
		merged = append(merged, GlossaryEntry{Source: src, Target: bySource[src]})
	}

	// Longer sources first so "test substance" wins over "test".
	sort.SliceStable(merged, func(i, j int) bool {
		return len(merged[i].Source) > len(merged[j].Source)
	})

	return &Glossary{entries: merged}
}

// Len returns the number of entries in the glossary.
func (g *Glossary) Len() int {
	return len(g.entries)
}

// Apply replaces glossary terms in text with their target renderings.
// At each position the longest matching source term wins, the match must
// fall on word boundaries, and scanning resumes after the matched source
// so inserted target text is never rescanned.
func (g *Glossary) Apply(text string) string {
	if len(g.entries) == 0 || text == "" {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	i := 0
	for i < len(text) {
		matched := false
		for _, e := range g.entries {
			if !strings.HasPrefix(text[i:], e.Source) {
				continue
			}
			if !boundaryBefore(text, i) || !boundaryAfter(text, i+len(e.Source)) {
				continue
			}
			b.WriteString(e.Target)
			i += len(e.Source)
			matched = true
			break
		}
		if !matched {
			b.WriteByte(text[i])
			i++
		}
	}

	return b.String()
}

func boundaryBefore(text string, pos int) bool {
	if pos == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:pos])
	return !isWordRune(r)
}

func boundaryAfter(text string, pos int) bool {
	if pos >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[pos:])
	return !isWordRune(r)
}

// isWordRune treats ASCII letters and digits as word characters. CJK runes
// are not word characters here, so a glossary term directly adjacent to
// already-translated text still matches.
func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
