package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// versionQualifiers are tokens that distinguish listings of the same title
// rather than different titles. Stripped whether they appear as trailing
// words or inside a parenthetical.
var versionQualifiers = map[string]struct{}{
	"demo":       {},
	"beta":       {},
	"alpha":      {},
	"playtest":   {},
	"prologue":   {},
	"chapter":    {},
	"dlc":        {},
	"soundtrack": {},
	"early":      {}, // "early access" strips as two tokens
	"access":     {},
	"edition":    {},
	"test":       {},
}

// foldTransformer decomposes to NFKD and drops combining marks, so accented
// characters compare equal to their base forms.
var foldTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize canonicalizes a title name for similarity comparison: lowercase,
// accent folding, trademark and punctuation removal, separator collapsing,
// and version-qualifier stripping. Idempotent.
func Normalize(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}
	lower := strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(lower))
	depth := 0
	var parenContent strings.Builder
	for _, r := range lower {
		switch {
		case r == '(' || r == '[':
			depth++
			if depth == 1 {
				parenContent.Reset()
			}
		case r == ')' || r == ']':
			if depth > 0 {
				depth--
				if depth == 0 {
					// Keep parenthetical content unless it is nothing but
					// version qualifiers.
					content := parenContent.String()
					if !allQualifiers(content) {
						b.WriteByte(' ')
						b.WriteString(content)
					}
				}
			}
		case depth > 0:
			parenContent.WriteRune(normalizeRune(r))
		default:
			b.WriteRune(normalizeRune(r))
		}
	}

	tokens := strings.Fields(b.String())
	tokens = stripTrailingQualifiers(tokens)
	return strings.Join(tokens, " ")
}

// normalizeRune maps separators to spaces and drops symbols. Letters and
// digits pass through.
func normalizeRune(r rune) rune {
	switch {
	case unicode.IsLetter(r) || unicode.IsDigit(r):
		return r
	default:
		return ' '
	}
}

func allQualifiers(content string) bool {
	tokens := strings.Fields(content)
	if len(tokens) == 0 {
		return true
	}
	for _, token := range tokens {
		if _, ok := versionQualifiers[token]; !ok {
			return false
		}
	}
	return true
}

func stripTrailingQualifiers(tokens []string) []string {
	for len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		if _, ok := versionQualifiers[last]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}
