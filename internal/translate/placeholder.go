package translate

import (
	"fmt"
	"regexp"
	"strings"

	"guideline-translator/internal/types"
)

// Math spans are replaced with opaque tokens before a unit is sent to the
// translation backend, so the backend never sees raw formula text. Tokens
// are numbered per unit and restored byte for byte afterwards.

const mathToken = "<<<MATH_%d>>>"

var (
	mathSpanPattern  = regexp.MustCompile(`\$\$[^$]*\$\$|\$[^$]*\$`)
	mathTokenPattern = regexp.MustCompile(`<<<MATH_(\d+)>>>`)
)

// ProtectMathSpans replaces every math span in text with a numbered token.
// The returned slice holds the original spans in token order.
func ProtectMathSpans(text string) (string, []string) {
	var spans []string
	protected := mathSpanPattern.ReplaceAllStringFunc(text, func(span string) string {
		token := fmt.Sprintf(mathToken, len(spans))
		spans = append(spans, span)
		return token
	})
	return protected, spans
}

// RestoreMathSpans substitutes the original spans back into translated text.
// The translation must contain exactly the tokens that were issued, each
// once and in the original order. Any deviation is a translation integrity
// failure and the unit must be retried or fall back to its source text.
func RestoreMathSpans(translated string, spans []string) (string, error) {
	found := mathTokenPattern.FindAllString(translated, -1)

	if len(found) != len(spans) {
		return "", types.NewAppErrorWithDetails(
			types.ErrTranslationIntegrity,
			"math placeholder count changed during translation",
			fmt.Sprintf("expected %d tokens, found %d", len(spans), len(found)),
			nil,
		)
	}

	for i, token := range found {
		expected := fmt.Sprintf(mathToken, i)
		if token != expected {
			return "", types.NewAppErrorWithDetails(
				types.ErrTranslationIntegrity,
				"math placeholder order changed during translation",
				fmt.Sprintf("position %d: expected %s, found %s", i, expected, token),
				nil,
			)
		}
	}

	result := translated
	for i, span := range spans {
		token := fmt.Sprintf(mathToken, i)
		result = strings.Replace(result, token, span, 1)
	}

	return result, nil
}
