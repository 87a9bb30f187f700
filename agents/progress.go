package agents

import (
	"math"
	"strings"
)

// stoplist of common Finnish filler words skipped by the keyword heuristic.
var stopWords = map[string]struct{}{
	"joka": {}, "että": {}, "tämä": {}, "niin": {},
	"kuin": {}, "voit": {}, "olla": {}, "myös": {},
}

const (
	maxKeyTerms  = 20
	maxKeyPhrase = 10
)

// NormalizeProgressLabel coerces free-form LLM output to one of the four
// progress labels. Only an exact label passes; anything else, including
// lowercase or padded variants, becomes PROGRESSING, the fail-safe middle
// value. Neither EARLY nor SOLVED is ever the silent default.
func NormalizeProgressLabel(raw string) string {
	switch raw {
	case LabelEarly, LabelProgressing, LabelClose, LabelSolved:
		return raw
	}
	return LabelProgressing
}

// EstimateSolutionProgress is the cheap keyword-overlap classifier: it counts
// how many key terms of the solution text appear anywhere in the conversation
// and buckets the ratio. Less accurate than the LLM evaluation, but
// explainable and free, so the offline reply simulation uses it.
func EstimateSolutionProgress(supportComment, solution string, history []string) string {
	if strings.TrimSpace(solution) == "" {
		return LabelUnknown
	}

	terms := extractKeyTerms(solution)
	if len(terms) == 0 {
		return LabelUnknown
	}

	haystack := strings.ToLower(strings.Join(history, " ") + " " + supportComment)
	matched := 0
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			matched++
		}
	}

	percent := int(math.Min(100, math.Round(float64(matched)/float64(len(terms))*100)))

	switch {
	case percent < 25:
		return LabelEarly
	case percent < 60:
		return LabelProgressing
	case percent < 90:
		return LabelClose
	default:
		return LabelSolved
	}
}

// extractKeyTerms pulls the important words and adjacent-word phrases out of
// a solution text. Folding to the ASCII word class before splitting leaves
// Finnish word stems behind, which makes inflected forms in the conversation
// match their dictionary form in the solution.
func extractKeyTerms(solution string) []string {
	folded := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r == ' ', r == '\t', r == '\n', r == '\r':
			return r
		default:
			return ' '
		}
	}, strings.ToLower(solution))

	words := make([]string, 0)
	for _, word := range strings.Fields(folded) {
		if len(word) <= 3 {
			continue
		}
		if _, skip := stopWords[word]; skip {
			continue
		}
		words = append(words, word)
	}

	seen := make(map[string]struct{}, len(words))
	unique := make([]string, 0, len(words))
	for _, word := range words {
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		unique = append(unique, word)
		if len(unique) == maxKeyTerms {
			break
		}
	}

	phrases := make([]string, 0, maxKeyPhrase)
	for i := 0; i+1 < len(words) && len(phrases) < maxKeyPhrase; i++ {
		phrases = append(phrases, words[i]+" "+words[i+1])
	}

	return append(unique, phrases...)
}
