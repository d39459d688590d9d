package wordlist

import (
	"strings"
	"testing"
)

func TestClean(t *testing.T) {
	got := Clean([]string{" hello ", "", "   ", "world"})
	if strings.Join(got, ",") != "hello,world" {
		t.Fatalf("unexpected cleaned entries: %v", got)
	}
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences([]string{"The quick fox.", "  jumps   over  "})
	want := "The,quick,fox.,jumps,over"
	if strings.Join(got, ",") != want {
		t.Fatalf("expected %s, got %v", want, got)
	}
}
