// Package wordlist supplies the ordered word sequences typed in a session.
package wordlist

import (
	"bufio"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/tuirace/internal/generator"
	"github.com/verte-zerg/tuirace/internal/model"
)

//go:embed data/*.json
var builtin embed.FS

// Supplier returns the entries for a mode. Failures yield an empty slice.
type Supplier interface {
	Load(mode model.Mode) []string
}

// Source loads word lists from a directory, falling back to the built-in lists.
// Files are looked up as <dir>/<mode>.json (array of strings) then <dir>/<mode>.txt (one entry per line).
type Source struct {
	Dir string
}

// NewSource returns a Source reading from dir. An empty dir uses only built-in lists.
func NewSource(dir string) *Source {
	return &Source{Dir: dir}
}

// Load returns the entries for mode. Sentence entries are returned whole; use
// Prepare to turn them into a word sequence.
func (s *Source) Load(mode model.Mode) []string {
	entries, err := s.load(mode)
	if err != nil {
		log.Error().Err(err).Str("mode", string(mode)).Msg("failed to load word list")
		return []string{}
	}
	return entries
}

// Prepare shuffles entries into the sequence to type. Sentences are shuffled
// whole and then split, so the words of each sentence stay in order.
func Prepare(mode model.Mode, entries []string, gen *generator.Generator) []string {
	if gen == nil {
		gen = generator.New()
	}
	shuffled := gen.Shuffle(entries)
	if mode == model.ModeSentences {
		return SplitSentences(shuffled)
	}
	return shuffled
}

// Modes lists the modes available from the directory and the built-in lists.
func (s *Source) Modes() ([]string, error) {
	set := map[string]struct{}{}
	builtins, err := fs.ReadDir(builtin, "data")
	if err != nil {
		return nil, err
	}
	for _, entry := range builtins {
		set[strings.TrimSuffix(entry.Name(), ".json")] = struct{}{}
	}
	if s.Dir != "" {
		entries, err := os.ReadDir(s.Dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read word list directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			ext := filepath.Ext(name)
			if ext != ".json" && ext != ".txt" {
				continue
			}
			set[strings.TrimSuffix(name, ext)] = struct{}{}
		}
	}
	modes := make([]string, 0, len(set))
	for m := range set {
		modes = append(modes, m)
	}
	sort.Strings(modes)
	return modes, nil
}

func (s *Source) load(mode model.Mode) ([]string, error) {
	name := string(mode)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid mode %q", name)
	}
	if s.Dir != "" {
		jsonPath := filepath.Join(s.Dir, name+".json")
		entries, err := loadJSONFile(jsonPath)
		if err == nil {
			return entries, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		entries, err = LoadWords(filepath.Join(s.Dir, name+".txt"))
		if err == nil {
			return entries, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	file, err := builtin.Open("data/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("no word list for mode %q: %w", name, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for embedded file.
			_ = cerr
		}
	}()
	return decodeJSON(file)
}

// LoadWords reads one entry per line from the provided file path.
func LoadWords(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only word list.
			_ = cerr
		}
	}()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("word list is empty: %s", path)
	}
	return words, nil
}

func loadJSONFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only word list.
			_ = cerr
		}
	}()
	entries, err := decodeJSON(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

func decodeJSON(r io.Reader) ([]string, error) {
	var raw []string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode word list: %w", err)
	}
	entries := Clean(raw)
	if len(entries) == 0 {
		return nil, fmt.Errorf("word list is empty")
	}
	return entries, nil
}
