// Package harmonize converts income statistics published at arbitrary
// granularity and format into one numeric metric per geographic unit.
package harmonize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Bounds is one income class interval in reais. A nil Upper means an
// open-ended top bracket; both nil means the label could not be parsed.
type Bounds struct {
	Lower *float64
	Upper *float64
}

// Parseable reports whether the label yielded at least one bound.
func (b Bounds) Parseable() bool {
	return b.Lower != nil || b.Upper != nil
}

func ptr(v float64) *float64 { return &v }

// IBGE publishes class labels with inconsistent casing and diacritics
// ("salário"/"salario", "Até"/"ate"). All matching happens on lowercased,
// accent-stripped text.
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func normalizeLabel(label string) string {
	s, _, err := transform.String(deaccent, strings.ToLower(strings.TrimSpace(label)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(label))
	}
	return s
}

// fraction: an integer or a simple ratio like "1/2".
const fracPat = `([0-9]+(?:/[0-9]+)?)`

// amount: Brazilian locale numeral, "." for thousands and "," for decimals.
const amountPat = `([0-9]+(?:[.,][0-9]+)*)`

var (
	reWageToken = regexp.MustCompile(`\bsm\b|salario`)

	reWageUpTo    = regexp.MustCompile(`ate\s*` + fracPat)
	reWageRange   = regexp.MustCompile(`(?:mais|acima) de\s*` + fracPat + `\s*a\s*` + fracPat)
	reWageOpen    = regexp.MustCompile(`(?:mais|acima) de\s*` + fracPat)
	reAmountUpTo  = regexp.MustCompile(`ate\s*` + amountPat)
	reAmountRange = regexp.MustCompile(`(?:mais|acima) de\s*` + amountPat + `\s*a\s*` + amountPat)
	reAmountOpen  = regexp.MustCompile(`(?:mais|acima) de\s*` + amountPat + `\s*$`)
)

// labelMatcher tries one surface form of the class-label grammar.
// It returns the matched bounds, or ok=false when the form does not apply.
type labelMatcher struct {
	name  string
	match func(s string, minWage float64) (Bounds, bool)
}

// Matchers are tried in order and the first hit wins. Ordering matters: a
// zero-income phrase must not fall through to the numeric patterns, and
// minimum-wage forms must be tried before plain currency forms because they
// share the "ate"/"mais de" prefixes.
var labelMatchers = []labelMatcher{
	{"zero-income", matchZeroIncome},
	{"minimum-wage", matchMinimumWage},
	{"currency", matchCurrency},
}

// ParseLabel converts a free-text income-class label into numeric bounds in
// reais. Minimum-wage-denominated labels are scaled by minWage. Labels that
// match no known form return zero-value Bounds (both bounds nil); callers drop
// those classes and keep going.
func ParseLabel(label string, minWage float64) Bounds {
	s := normalizeLabel(label)
	for _, m := range labelMatchers {
		if b, ok := m.match(s, minWage); ok {
			return b
		}
	}
	return Bounds{}
}

func matchZeroIncome(s string, _ float64) (Bounds, bool) {
	if strings.Contains(s, "sem rendimento") {
		return Bounds{Lower: ptr(0), Upper: ptr(0)}, true
	}
	return Bounds{}, false
}

func matchMinimumWage(s string, minWage float64) (Bounds, bool) {
	if !reWageToken.MatchString(s) {
		return Bounds{}, false
	}
	if m := reWageUpTo.FindStringSubmatch(s); m != nil {
		return Bounds{Lower: ptr(0), Upper: ptr(evalFraction(m[1]) * minWage)}, true
	}
	if m := reWageRange.FindStringSubmatch(s); m != nil {
		return Bounds{
			Lower: ptr(evalFraction(m[1]) * minWage),
			Upper: ptr(evalFraction(m[2]) * minWage),
		}, true
	}
	if m := reWageOpen.FindStringSubmatch(s); m != nil {
		return Bounds{Lower: ptr(evalFraction(m[1]) * minWage)}, true
	}
	return Bounds{}, false
}

func matchCurrency(s string, _ float64) (Bounds, bool) {
	if m := reAmountUpTo.FindStringSubmatch(s); m != nil {
		return Bounds{Lower: ptr(0), Upper: ptr(parseAmount(m[1]))}, true
	}
	if m := reAmountRange.FindStringSubmatch(s); m != nil {
		return Bounds{Lower: ptr(parseAmount(m[1])), Upper: ptr(parseAmount(m[2]))}, true
	}
	if m := reAmountOpen.FindStringSubmatch(s); m != nil {
		return Bounds{Lower: ptr(parseAmount(m[1]))}, true
	}
	return Bounds{}, false
}

// evalFraction parses "1/2" as 0.5 and plain integers as themselves.
func evalFraction(expr string) float64 {
	if num, den, ok := strings.Cut(expr, "/"); ok {
		n, _ := strconv.ParseFloat(num, 64)
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0
		}
		return n / d
	}
	v, _ := strconv.ParseFloat(expr, 64)
	return v
}

// parseAmount converts a Brazilian-formatted numeral ("1.234,56") to a float.
func parseAmount(txt string) float64 {
	cleaned := strings.ReplaceAll(txt, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	v, _ := strconv.ParseFloat(cleaned, 64)
	return v
}
