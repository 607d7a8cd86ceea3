package metrics

import (
	"math"
	"strings"
)

// Tokenize splits free text into lower-cased, whitespace separated tokens.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// CountRecalled counts how many target words appear as a token of the recalled text.
// Order, repetition and extra words do not matter.
func CountRecalled(target []string, recalled string) int {
	tokens := make(map[string]struct{})
	for _, tok := range Tokenize(recalled) {
		tokens[tok] = struct{}{}
	}

	count := 0
	for _, word := range target {
		if _, ok := tokens[strings.ToLower(word)]; ok {
			count++
		}
	}
	return count
}

// MemoryScore is the percentage of target words recalled, rounded to the nearest integer.
func MemoryScore(target []string, recalled string) int {
	if len(target) == 0 {
		return 0
	}
	return int(math.Round(100 * float64(CountRecalled(target, recalled)) / float64(len(target))))
}
