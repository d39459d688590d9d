// Package generator provides the randomness used to prepare word lists and room codes.
package generator

import (
	"math/rand"
	"sync"
	"time"
)

// Generator produces shuffled word lists and random codes. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a deterministic Generator.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Shuffle returns a shuffled copy of words.
func (g *Generator) Shuffle(words []string) []string {
	out := make([]string, len(words))
	copy(out, words)
	g.mu.Lock()
	g.rnd.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	g.mu.Unlock()
	return out
}

// Code builds a string of n characters drawn uniformly from alphabet.
func (g *Generator) Code(alphabet string, n int) string {
	chars := []rune(alphabet)
	if len(chars) == 0 || n <= 0 {
		return ""
	}
	out := make([]rune, n)
	g.mu.Lock()
	for i := range out {
		out[i] = chars[g.rnd.Intn(len(chars))]
	}
	g.mu.Unlock()
	return string(out)
}
