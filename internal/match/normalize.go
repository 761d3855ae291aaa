package match

import (
	"regexp"
	"strings"
)

var (
	nonAlphaNum = regexp.MustCompile(`[^a-z0-9\s]+`)
	multiSpace  = regexp.MustCompile(`\s+`)
)

// abbreviations maps common raw-text shorthand to the canonical word.
// Applied token-wise after case folding and punctuation stripping.
var abbreviations = map[string]string{
	"tourney": "tournament",
	"champs":  "championship",
	"gtd":     "guaranteed",
	"intl":    "international",
}

// Normalize case-folds, expands known abbreviations, strips punctuation
// and collapses whitespace. Pure; the same input always yields the same
// output (consolidation keys depend on this).
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "'", "")
	s = nonAlphaNum.ReplaceAllString(s, " ")
	parts := strings.Fields(s)
	for i, p := range parts {
		if full, ok := abbreviations[p]; ok {
			parts[i] = full
		}
	}
	s = strings.Join(parts, " ")
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}

// Slug renders a normalized string as a hyphen-joined key segment,
// e.g. "Friday Night NLHE" -> "friday-night-nlhe".
func Slug(s string) string {
	return strings.Join(strings.Fields(Normalize(s)), "-")
}

// Tokens returns the normalized word set of s.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// TokenOverlap is the Dice coefficient of the two normalized token sets.
func TokenOverlap(a, b string) float64 {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(ta))
	for _, t := range ta {
		set[t] = struct{}{}
	}
	common := 0
	seen := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			common++
		}
	}
	return 2 * float64(common) / float64(len(set)+len(seen))
}

// Levenshtein is the classic edit distance over runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// editSimilarity maps Levenshtein distance over normalized strings into
// [0,1] (1 = identical).
func editSimilarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" && nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	d := Levenshtein(na, nb)
	return 1 - float64(d)/float64(longest)
}

// Similarity blends token overlap with edit distance. Token overlap
// handles reordering ("Card Room Joe's"), edit distance handles typos
// ("Joes Card Rm").
func Similarity(a, b string) float64 {
	if Normalize(a) == "" || Normalize(b) == "" {
		return 0
	}
	return clamp01(0.5*TokenOverlap(a, b) + 0.5*editSimilarity(a, b))
}
