package wordlist

import "strings"

// Clean trims entries and drops blank ones.
func Clean(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// SplitSentences flattens sentences into their space-separated words, keeping order.
func SplitSentences(sentences []string) []string {
	var words []string
	for _, s := range sentences {
		words = append(words, strings.Fields(s)...)
	}
	return words
}
