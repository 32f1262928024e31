// Package memorytest provides a deterministic embedding for memory index tests.
package memorytest

import (
	"context"
	"strings"
	"unicode"
)

var vocabulary = []string{
	"bike", "bicycle", "honda", "civic", "car", "claim", "policy", "fraud",
	"risk", "accident", "flood", "water", "roof", "theft", "stolen", "window",
	"coverage", "hello", "repair", "engine", "crash",
}

// KeywordEmbed maps each known word to its own dimension. Words outside the
// vocabulary are ignored; a constant bias keeps every vector non-zero.
func KeywordEmbed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(vocabulary)+1)
	vec[len(vocabulary)] = 0.1

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		w = stem(w)
		for i, v := range vocabulary {
			if v == w {
				vec[i]++
				break
			}
		}
	}
	return vec, nil
}

func stem(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return strings.TrimSuffix(w, "s")
	}
	return w
}
