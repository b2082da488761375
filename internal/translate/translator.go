// Package translate renders an assembled document into the target language
// while preserving its block structure, math spans, and terminology.
package translate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"guideline-translator/internal/document"
	"guideline-translator/internal/logger"
)

const (
	// DefaultMaxUnitSize is the maximum size of a translation unit in bytes.
	DefaultMaxUnitSize = 4000
	// DefaultConcurrency is the number of units translated in parallel.
	DefaultConcurrency = 3
	// maxUnitAttempts bounds how often a unit is re-sent after an
	// integrity violation before it falls back to its source text.
	maxUnitAttempts = 2
	// maxBackendAttempts bounds retries of transient backend failures.
	maxBackendAttempts = 2
	// baseRetryDelay is the base delay between backend retries.
	baseRetryDelay = 2 * time.Second
)

// Options configures a Translator. Zero values fall back to defaults.
type Options struct {
	TargetLanguage string
	MaxUnitSize    int
	Concurrency    int
}

// Stats summarises a document translation run.
type Stats struct {
	Units       int
	FailedUnits int
	TokensUsed  int
}

// Translator translates documents unit by unit through a Backend.
type Translator struct {
	backend     Backend
	glossary    *Glossary
	targetLang  string
	maxUnitSize int
	concurrency int
	retryDelay  time.Duration
}

// New creates a Translator. A nil glossary disables terminology enforcement.
func New(backend Backend, glossary *Glossary, opts Options) *Translator {
	if glossary == nil {
		glossary = NewGlossary(nil)
	}
	if opts.TargetLanguage == "" {
		opts.TargetLanguage = "zh-CN"
	}
	if opts.MaxUnitSize <= 0 {
		opts.MaxUnitSize = DefaultMaxUnitSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Translator{
		backend:     backend,
		glossary:    glossary,
		targetLang:  opts.TargetLanguage,
		maxUnitSize: opts.MaxUnitSize,
		concurrency: opts.Concurrency,
		retryDelay:  baseRetryDelay,
	}
}

// unit is one backend-sized slice of a block's text. seq orders the units
// that belong to the same block.
type unit struct {
	block int
	seq   int
	text  string
}

type unitResult struct {
	text     string
	tokens   int
	fallback bool
}

// Translate produces a target-language copy of doc. The result has the same
// number of blocks, in the same kind order, with the same ordinals and
// levels. Figure references, table references, and page breaks pass through
// untouched. A unit whose translation cannot be verified keeps its source
// text and marks its block as a fallback; a single failed unit never aborts
// the document.
func (t *Translator) Translate(ctx context.Context, doc *document.Document) (*document.Document, Stats, error) {
	out := doc.Clone()

	var units []unit
	for i := range out.Blocks {
		blk := &out.Blocks[i]
		if !isTranslatable(blk.Kind) || strings.TrimSpace(blk.Text) == "" {
			continue
		}
		for seq, seg := range splitSegments(blk.Text, t.maxUnitSize) {
			units = append(units, unit{block: i, seq: seq, text: seg})
		}
	}

	logger.Info("starting document translation",
		logger.Int("blocks", len(out.Blocks)),
		logger.Int("units", len(units)),
		logger.String("targetLanguage", t.targetLang),
		logger.Int("concurrency", t.concurrency))

	results := make([]unitResult, len(units))
	sem := make(chan struct{}, t.concurrency)
	var wg sync.WaitGroup

	for i := range units {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = t.translateUnit(ctx, units[idx].text)
		}(i)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Units: len(units)}

	// Reassemble per-block text from its units, in sequence order. Units
	// of one block are adjacent in the slice because they were emitted
	// together.
	var pending []unitResult
	pendingBlock := -1
	flush := func() {
		if pendingBlock < 0 {
			return
		}
		var b strings.Builder
		fallback := false
		for _, r := range pending {
			b.WriteString(r.text)
			if r.fallback {
				fallback = true
			}
		}
		out.Blocks[pendingBlock].Text = b.String()
		out.Blocks[pendingBlock].Fallback = fallback
		pending = pending[:0]
		pendingBlock = -1
	}

	for i, u := range units {
		if u.block != pendingBlock {
			flush()
			pendingBlock = u.block
		}
		pending = append(pending, results[i])
		stats.TokensUsed += results[i].tokens
		if results[i].fallback {
			stats.FailedUnits++
		}
	}
	flush()

	logger.Info("document translation finished",
		logger.Int("units", stats.Units),
		logger.Int("failedUnits", stats.FailedUnits),
		logger.Int("tokensUsed", stats.TokensUsed))

	return out, stats, nil
}

// translateUnit sends one unit through the backend. Math spans are replaced
// with opaque tokens first and restored byte for byte afterwards. If the
// restored output fails the placeholder check the unit is re-sent once
// verbatim; after that it falls back to its source text.
func (t *Translator) translateUnit(ctx context.Context, text string) unitResult {
	protected, spans := ProtectMathSpans(text)
	systemPrompt := buildSystemPrompt(t.targetLang)
	userPrompt := buildUserPrompt(protected, len(spans))

	tokens := 0
	for attempt := 1; attempt <= maxUnitAttempts; attempt++ {
		raw, used, err := t.completeWithRetry(ctx, systemPrompt, userPrompt)
		tokens += used
		if err != nil {
			logger.Warn("unit translation failed",
				logger.Int("attempt", attempt),
				logger.Int("unitLength", len(text)),
				logger.Err(err))
			break
		}

		restored, err := RestoreMathSpans(cleanResponse(raw), spans)
		if err != nil {
			logger.Warn("unit translation integrity check failed",
				logger.Int("attempt", attempt),
				logger.Err(err))
			continue
		}

		return unitResult{text: t.glossary.Apply(restored), tokens: tokens}
	}

	logger.Warn("unit falls back to source text", logger.Int("unitLength", len(text)))
	return unitResult{text: text, tokens: tokens, fallback: true}
}

// completeWithRetry calls the backend, retrying transient failures with a
// bounded linear backoff.
func (t *Translator) completeWithRetry(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	var lastErr error
	total := 0

	for attempt := 1; attempt <= maxBackendAttempts; attempt++ {
		out, tokens, err := t.backend.Complete(ctx, systemPrompt, userPrompt)
		total += tokens
		if err == nil {
			return out, total, nil
		}

		lastErr = err
		if !isRetryableBackendError(err) {
			return "", total, err
		}

		if attempt < maxBackendAttempts {
			delay := t.retryDelay * time.Duration(attempt)
			logger.Debug("retrying backend call", logger.String("delay", delay.String()))
			select {
			case <-ctx.Done():
				return "", total, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return "", total, lastErr
}

func isTranslatable(kind document.BlockKind) bool {
	switch kind {
	case document.KindHeading, document.KindParagraph, document.KindReferenceEntry:
		return true
	default:
		return false
	}
}

// splitSegments slices text into pieces no longer than max bytes. Cuts land
// after a sentence end where possible, otherwise after a space, and never
// inside an inline math span or a UTF-8 rune. Concatenating the segments
// yields the original text.
func splitSegments(text string, max int) []string {
	if max <= 0 || len(text) <= max {
		return []string{text}
	}

	var segs []string
	rest := text
	for len(rest) > max {
		cut := segmentCut(rest, max)
		segs = append(segs, rest[:cut])
		rest = rest[cut:]
	}
	if rest != "" {
		segs = append(segs, rest)
	}
	return segs
}

func segmentCut(text string, max int) int {
	cut := max
	if idx := strings.LastIndex(text[:max], ". "); idx > 0 {
		cut = idx + 2
	} else if idx := strings.LastIndex(text[:max], " "); idx > 0 {
		cut = idx + 1
	}

	// An odd number of dollar signs means the cut lands inside a math
	// span. Move it back to before the opening delimiter.
	if strings.Count(text[:cut], "$")%2 == 1 {
		if open := strings.LastIndex(text[:cut], "$"); open > 0 {
			cut = open
		}
	}

	if cut <= 0 || cut > max {
		cut = max
	}
	for cut > 1 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}

// cleanResponse strips formatting artifacts some models wrap around their
// output, such as code fences or a leading label.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	for _, label := range []string{"Translation:", "翻译：", "译文："} {
		if strings.HasPrefix(s, label) {
			s = strings.TrimSpace(strings.TrimPrefix(s, label))
		}
	}

	return s
}

func buildSystemPrompt(targetLang string) string {
	return fmt.Sprintf(`You are a professional translator for regulatory toxicology documents such as chemical test guidelines.
Translate the user's text from English to %s.

RULES:
1. Tokens of the form <<<MATH_N>>> are placeholders for formulas. Copy each one EXACTLY as given, in the same order. Never translate, renumber, reorder, or drop a placeholder.
2. Output ONLY the translated text. No explanations, labels, or code fences.
3. Keep numbers, measurement values, and chemical names accurate.
4. Use the formal register of an official test guideline.`, languageName(targetLang))
}

func buildUserPrompt(text string, placeholderCount int) string {
	if placeholderCount == 0 {
		return text
	}
	return fmt.Sprintf(`The text contains %d placeholders of the form <<<MATH_N>>>. Copy every placeholder exactly.

%s`, placeholderCount, text)
}

func languageName(code string) string {
	switch code {
	case "zh-CN", "zh":
		return "Simplified Chinese"
	case "zh-TW":
		return "Traditional Chinese"
	case "ja", "ja-JP":
		return "Japanese"
	case "ko", "ko-KR":
		return "Korean"
	case "fr", "fr-FR":
		return "French"
	case "de", "de-DE":
		return "German"
	case "es", "es-ES":
		return "Spanish"
	default:
		return code
	}
}
