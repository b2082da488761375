// Package normalize rewrites scientific notation in extracted text into
// LaTeX math markup. Rewrites are idempotent: text that already carries math
// markup passes through unchanged.
package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// mathSpan matches existing inline and block math so that a second pass never
// rewrites inside markup produced by a first pass.
var mathSpan = regexp.MustCompile(`\$\$[^$]*\$\$|\$[^$]*\$`)

// rewriteRule pairs a recognition pattern with its replacement template.
type rewriteRule struct {
	pattern *regexp.Regexp
	repl    string
}

// Compound chemical and biological symbols. These take priority over unit
// rewrites when a span could match both.
var compoundRules = []rewriteRule{
	// Inhibition/effect concentration markers: IC50, EC50, LD50, CC50.
	{regexp.MustCompile(`\b(IC|EC|LD|LC|CC)(\d{1,3})\b`), `$$\text{${1}}_{${2}}$$`},
	// Small-molecule formulas with digit subscripts.
	{regexp.MustCompile(`\bCO2\b`), `$$\text{CO}_2$$`},
	{regexp.MustCompile(`\bH2O\b`), `$$\text{H}_2\text{O}$$`},
	{regexp.MustCompile(`\bO2\b`), `$$\text{O}_2$$`},
	{regexp.MustCompile(`\bNO2\b`), `$$\text{NO}_2$$`},
	{regexp.MustCompile(`\bSO2\b`), `$$\text{SO}_2$$`},
}

// Unit expressions: a numeric literal immediately followed by a known unit
// token. The literal stays plain text, the unit becomes an inline math text
// run, and the two are joined with a non-breaking tie.
var unitRules = []rewriteRule{
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*J/cm2\b`), `${1}~$$\text{J/cm}^2$$`},
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*mW/cm2\b`), `${1}~$$\text{mW/cm}^2$$`},
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*[µu]g/mL\b`), `${1}~$$\text{µg/mL}$$`},
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*mg/mL\b`), `${1}~$$\text{mg/mL}$$`},
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*mg/kg\b`), `${1}~$$\text{mg/kg}$$`},
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*[µu]M\b`), `${1}~$$\text{µM}$$`},
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*mM\b`), `${1}~$$\text{mM}$$`},
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*nm\b`), `${1}~$$\text{nm}$$`},
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*°C`), `${1}~$$\text{°C}$$`},
}

// Named equation templates. When an entire line matches one of these
// (ignoring surrounding whitespace) it is replaced with block math.
var equationTemplates = []rewriteRule{
	{
		regexp.MustCompile(`^\s*PIF\s*=\s*IC50\s*\(\s*-\s*Irr\.?\s*\)\s*/\s*IC50\s*\(\s*\+\s*Irr\.?\s*\)\s*$`),
		`$$$$\text{PIF} = \frac{\text{IC}_{50}(-\text{Irr})}{\text{IC}_{50}(+\text{Irr})}$$$$`,
	},
	{
		regexp.MustCompile(`^\s*MPE\s*=\s*(?:SUM|Σ)\s*\(\s*wi\s*[\*×]\s*PEci\s*\)\s*/\s*(?:SUM|Σ)\s*\(\s*wi\s*\)\s*$`),
		`$$$$\text{MPE} = \frac{\sum_{i} w_i \cdot \text{PE}_{c_i}}{\sum_{i} w_i}$$$$`,
	},
}

const protectMarker = "\x00MATH%d\x00"

var protectPattern = regexp.MustCompile("\x00MATH\\d+\x00")

// Normalize rewrites recognized scientific notation in text into math markup.
// It is safe to apply repeatedly.
func Normalize(text string) string {
	if text == "" {
		return text
	}

	text = norm.NFC.String(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = normalizeLine(line)
	}
	return strings.Join(lines, "\n")
}

func normalizeLine(line string) string {
	// Whole-line equation templates first: they produce block math, which
	// must not be built out of partially inline-rewritten text.
	for _, tmpl := range equationTemplates {
		if tmpl.pattern.MatchString(line) {
			return tmpl.pattern.ReplaceAllString(line, tmpl.repl)
		}
	}

	// Shield existing math spans so inline rules never rewrite inside them.
	spans := make(map[string]string)
	protected := protectMath(line, spans)

	for _, rule := range compoundRules {
		protected = rule.pattern.ReplaceAllString(protected, rule.repl)
	}
	// Compound results contain fresh math spans the unit rules must not see.
	protected = protectMath(protected, spans)

	for _, rule := range unitRules {
		protected = rule.pattern.ReplaceAllString(protected, rule.repl)
	}

	return restoreMath(protected, spans)
}

// protectMath replaces every math span with an opaque marker unique across
// passes and records the span under that marker.
func protectMath(text string, spans map[string]string) string {
	return mathSpan.ReplaceAllStringFunc(text, func(m string) string {
		marker := fmt.Sprintf(protectMarker, len(spans))
		spans[marker] = m
		return marker
	})
}

// restoreMath substitutes markers back with their original spans.
func restoreMath(text string, spans map[string]string) string {
	if len(spans) == 0 {
		return text
	}
	return protectPattern.ReplaceAllStringFunc(text, func(m string) string {
		if s, ok := spans[m]; ok {
			return s
		}
		return m
	})
}
