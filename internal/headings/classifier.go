// Package headings classifies extracted text lines as section headings or
// body text using a rule-based scorer over formatting, context, and content
// signals. Ambiguous lines default to body text: a missed heading only loses
// navigation, while a false heading corrupts document structure.
package headings

import (
	"regexp"
	"strings"
	"unicode"
)

// Level values for classified headings. LevelBody marks a line that is not a
// heading.
const (
	LevelBody = 0
	Level1    = 1
	Level2    = 2
	Level3    = 3
	Level4    = 4
)

// Signal weights. Tuned against the OECD test-guideline document family.
const (
	weightShort        = 2.0
	weightAllCaps      = 2.0
	weightNoTrailing   = 1.0
	weightBlankBefore  = 1.0
	weightProseAfter   = 1.0
	weightVocabulary   = 4.0
	weightNumbered     = 3.0
	penaltyShortRun    = -4.0
	penaltyPunctuation = -2.0

	// headingThreshold is the minimum combined score for a heading verdict.
	// Sits above the score of a bare short mixed-case line (5.0), so at
	// least one strong signal (caps, vocabulary, numbering) is required.
	headingThreshold = 5.5
	// ambiguityBand marks lines whose score lands within this distance of
	// the threshold; they still resolve to body text but are counted.
	ambiguityBand = 1.0

	// shortLineMax is the character length under which a line counts as
	// short when no page median is available.
	shortLineMax = 60
	// shortWordMax is the maximum word count of a heading candidate.
	shortWordMax = 10
)

// sectionVocabulary lists title phrases recurring across the document family.
// Matching is case-insensitive on the whole line after trimming numbering.
var sectionVocabulary = []string{
	"introduction",
	"initial considerations",
	"initial considerations and limitations",
	"principle of the test method",
	"description of the method",
	"demonstration of proficiency",
	"procedure",
	"preparations",
	"test conditions",
	"data and reporting",
	"results",
	"interpretation of results",
	"acceptance criteria",
	"evaluation and interpretation of results",
	"test report",
	"literature",
	"definitions",
	"annex",
}

var (
	numberedPrefix = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.?\s+\S`)
	refEntryMarker = regexp.MustCompile(`^\(\d+\)\s`)
)

// Score is the per-signal breakdown for one line. Total is the weighted sum
// the decision rule compares against the threshold.
type Score struct {
	Short       float64
	AllCaps     float64
	NoTrailing  float64
	BlankBefore float64
	ProseAfter  float64
	Vocabulary  float64
	Numbered    float64
	ShortRun    float64
	Punctuation float64
	Total       float64
}

// Result is the classification verdict for one line.
type Result struct {
	Level     int
	Score     Score
	Ambiguous bool
}

// IsHeading reports whether the line was classified as a heading.
func (r Result) IsHeading() bool { return r.Level != LevelBody }

// Context carries the neighboring lines a classification may consult. Empty
// strings stand for missing neighbors (document boundaries). PrevIsHeading
// marks a non-blank predecessor that was itself classified as a heading, so
// back-to-back headings keep the separation signal.
type Context struct {
	Prev          string
	Next          string
	PrevIsHeading bool
}

// Classify scores a single line against its context and returns the verdict.
func Classify(line string, ctx Context) Result {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Result{Level: LevelBody}
	}
	// Reference-list entries look like short lines but are never headings.
	if refEntryMarker.MatchString(trimmed) {
		return Result{Level: LevelBody}
	}

	var s Score

	words := strings.Fields(trimmed)
	short := len(trimmed) <= shortLineMax && len(words) <= shortWordMax
	if short {
		s.Short = weightShort
	}
	if isAllCaps(trimmed) {
		s.AllCaps = weightAllCaps
	}
	if !hasTrailingPunctuation(trimmed) {
		s.NoTrailing = weightNoTrailing
	} else {
		s.Punctuation = penaltyPunctuation
	}
	if strings.TrimSpace(ctx.Prev) == "" || ctx.PrevIsHeading {
		s.BlankBefore = weightBlankBefore
	}

	next := strings.TrimSpace(ctx.Next)
	if next != "" && !isShortLine(next) {
		s.ProseAfter = weightProseAfter
	} else if next != "" && isShortLine(next) {
		// A run of 2+ consecutive short lines is presumptively a list.
		s.ShortRun = penaltyShortRun
	}

	numbered := numberedPrefix.FindStringSubmatch(trimmed)
	if numbered != nil && short {
		s.Numbered = weightNumbered
	}
	if matchesVocabulary(trimmed) {
		s.Vocabulary = weightVocabulary
	}

	s.Total = s.Short + s.AllCaps + s.NoTrailing + s.BlankBefore +
		s.ProseAfter + s.Vocabulary + s.Numbered + s.ShortRun + s.Punctuation

	if s.Total < headingThreshold {
		ambiguous := s.Total >= headingThreshold-ambiguityBand
		return Result{Level: LevelBody, Score: s, Ambiguous: ambiguous}
	}

	return Result{Level: headingLevel(trimmed, numbered), Score: s}
}

// ClassifyPage classifies every line of a page. prevTail and nextHead carry
// the closest non-empty neighbor lines from adjacent pages so that context
// signals hold across page boundaries.
func ClassifyPage(lines []string, prevTail, nextHead string) []Result {
	results := make([]Result, len(lines))
	// The neighbor page's tail line has no verdict of its own; re-score it
	// without context to decide whether it was a heading.
	prevTailHeading := Classify(prevTail, Context{}).IsHeading()
	for i, line := range lines {
		ctx := Context{Prev: prevTail, Next: nextHead, PrevIsHeading: prevTailHeading}
		if i > 0 {
			ctx.Prev = lines[i-1]
			ctx.PrevIsHeading = results[i-1].IsHeading()
		}
		if i < len(lines)-1 {
			ctx.Next = lines[i+1]
		}
		results[i] = Classify(line, ctx)
	}
	return results
}

// headingLevel assigns the level for a line already judged to be a heading.
// Numbered prefixes map by segment count; everything else lands at level 3.
func headingLevel(line string, numbered []string) int {
	if numbered != nil {
		segments := strings.Count(numbered[1], ".") + 1
		switch {
		case segments <= 1:
			return Level2
		case segments == 2:
			return Level3
		default:
			return Level4
		}
	}
	return Level3
}

func matchesVocabulary(line string) bool {
	stripped := numberedPrefix.FindStringSubmatch(line)
	if stripped != nil {
		line = strings.TrimSpace(strings.TrimPrefix(line, stripped[1]))
		line = strings.TrimSpace(strings.TrimPrefix(line, "."))
	}
	lower := strings.ToLower(strings.TrimSpace(line))
	for _, phrase := range sectionVocabulary {
		if lower == phrase {
			return true
		}
	}
	return false
}

func isShortLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return len(trimmed) > 0 && len(trimmed) <= shortLineMax &&
		len(strings.Fields(trimmed)) <= shortWordMax &&
		!hasTrailingPunctuation(trimmed)
}

func isAllCaps(line string) bool {
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}

func hasTrailingPunctuation(line string) bool {
	return strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") ||
		strings.HasSuffix(line, ";") || strings.HasSuffix(line, ":")
}
