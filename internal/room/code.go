package room

import (
	"strings"

	"github.com/verte-zerg/tuirace/internal/generator"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// GenerateCode returns a random room code.
func GenerateCode(gen *generator.Generator) string {
	if gen == nil {
		gen = generator.New()
	}
	return gen.Code(codeAlphabet, codeLength)
}

// NormalizeCode trims and upper-cases a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code is six letters or digits, ignoring case.
func ValidCode(code string) bool {
	code = NormalizeCode(code)
	if len(code) != codeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			return false
		}
	}
	return true
}
