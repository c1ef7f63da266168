// Package dictionary produces local dictionary hints for translation prompts:
// Chinese terms in the input are romanized and matched against an English
// word list extracted from a Hunspell BDIC file.
package dictionary

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/mozillazg/go-pinyin"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/yuedu-lab/yuedu/internal/domain/model"
)

const (
	// DefaultMaxWords caps the word list loaded from a BDIC file.
	DefaultMaxWords = 120000
	// DefaultMaxEntries caps the hints attached to one prompt.
	DefaultMaxEntries = 5

	suggestionsPerTerm = 3
	matchCutoff        = 0.6

	// NoMatches is the glossary text used when there are no hints.
	NoMatches = "No dictionary matches were found for this text."
)

var (
	termPattern  = regexp.MustCompile(`[\x{4e00}-\x{9fff}]{2,6}`)
	tokenPattern = regexp.MustCompile(`[A-Za-z][A-Za-z\-']{1,29}`)
)

// Dictionary matches romanized Chinese terms against an English word list.
// A Dictionary is immutable and safe for concurrent use.
type Dictionary struct {
	words      []string
	maxEntries int
	args       pinyin.Args
}

// New builds a Dictionary over words, which must already be lowercased and
// deduplicated. maxEntries <= 0 means DefaultMaxEntries.
func New(words []string, maxEntries int) *Dictionary {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Dictionary{
		words:      words,
		maxEntries: maxEntries,
		args:       pinyin.NewArgs(),
	}
}

// Empty returns a Dictionary that never produces hints.
func Empty() *Dictionary { return New(nil, 0) }

// LoadFile reads the word list from a BDIC file. The returned error is
// informational; on failure the Dictionary is empty but usable.
func LoadFile(path string, maxWords, maxEntries int) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return New(nil, maxEntries), fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	words, err := ReadWords(f, maxWords)
	if err != nil {
		return New(nil, maxEntries), err
	}
	return New(words, maxEntries), nil
}

// ReadWords extracts the English word list from BDIC bytes. The file is
// decoded as Latin-1; every run of 2-30 letters, hyphens and apostrophes that
// starts with a letter counts as a word. The result is lowercased, unique,
// sorted, and truncated to maxWords (<= 0 means DefaultMaxWords).
func ReadWords(r io.Reader, maxWords int) ([]string, error) {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	raw, err := io.ReadAll(charmap.ISO8859_1.NewDecoder().Reader(r))
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}

	seen := make(map[string]struct{})
	for _, tok := range tokenPattern.FindAllString(string(raw), -1) {
		seen[strings.ToLower(tok)] = struct{}{}
	}
	words := make([]string, 0, len(seen))
	for w := range seen {
		words = append(words, w)
	}
	sort.Strings(words)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	return words, nil
}

// Len returns the number of words loaded.
func (d *Dictionary) Len() int { return len(d.words) }

// ExtractTerms returns the unique runs of 2-6 Han characters in text, in
// order of first appearance, at most limit of them. Full-width and
// compatibility forms are folded first.
func ExtractTerms(text string, limit int) []string {
	text = width.Fold.String(norm.NFKC.String(text))

	var out []string
	seen := make(map[string]struct{})
	for _, term := range termPattern.FindAllString(text, -1) {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Romanize returns the toneless pinyin of term with syllables run together.
func (d *Dictionary) Romanize(term string) string {
	return strings.Join(pinyin.LazyPinyin(term, d.args), "")
}

// Lookup returns up to maxEntries hints for the Chinese terms in text. Terms
// without a close English match are skipped.
func (d *Dictionary) Lookup(text string) []model.DictionaryEntry {
	entries := []model.DictionaryEntry{}
	if len(d.words) == 0 {
		return entries
	}

	for _, term := range ExtractTerms(text, d.maxEntries*2) {
		romanized := d.Romanize(term)
		if romanized == "" {
			continue
		}
		suggestions := closeMatches(strings.ToLower(romanized), d.words, suggestionsPerTerm, matchCutoff)
		if len(suggestions) > 0 {
			entries = append(entries, model.DictionaryEntry{
				SourceTerm:  term,
				Romanized:   romanized,
				Suggestions: suggestions,
			})
		}
		if len(entries) >= d.maxEntries {
			break
		}
	}
	return entries
}

// FormatPrompt renders entries as glossary lines for a prompt.
func FormatPrompt(entries []model.DictionaryEntry) string {
	if len(entries) == 0 {
		return NoMatches
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s (%s): possible English matches -> %s",
			e.SourceTerm, e.Romanized, strings.Join(e.Suggestions, ", ")))
	}
	return strings.Join(lines, "\n")
}

type scored struct {
	word  string
	score float64
}

// closeMatches returns the n best candidates whose similarity to word is at
// least cutoff, best first; equal scores order by the candidate descending.
func closeMatches(word string, candidates []string, n int, cutoff float64) []string {
	target := strings.Split(word, "")
	m := difflib.NewMatcher(nil, target)

	var hits []scored
	for _, c := range candidates {
		// Upper bound from lengths alone, checked before any allocation.
		la, lb := len(c), len(target)
		if 2*float64(min(la, lb))/float64(la+lb) < cutoff {
			continue
		}
		m.SetSeq1(strings.Split(c, ""))
		if m.QuickRatio() < cutoff {
			continue
		}
		if r := m.Ratio(); r >= cutoff {
			hits = append(hits, scored{word: c, score: r})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].word > hits[j].word
	})
	if len(hits) > n {
		hits = hits[:n]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.word
	}
	return out
}
