// internal/words/words.go
//
// Provides the two word sources the selection engine draws from.
//
// Responsibilities:
//   - Corpus: a frequency-ordered reference vocabulary. Exposes the N most
//     frequent words and a relative usage score per word.
//   - Dictionary: an exhaustive, frequency-less fallback word list used when
//     the corpus-driven strategy is exhausted or a submission is rejected.
//   - Load either from an operator-provided file or fall back to embedded
//     defaults, so the bot runs with no external data files.
//
// File formats:
//   - Corpus: one entry per line, "word score" (score is a relative usage
//     frequency, descending order expected but re-sorted defensively).
//   - Dictionary: one word per line.
//
// Constraints:
//   • Words are normalized to lowercase ASCII letters; anything else is skipped.
//   • Dictionary words are held sorted so fallback picks are reproducible.

package words

import (
	"bufio"
	_ "embed"
	"errors"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// --- embedded defaults (ensures the bot runs even if no files configured) ---

//go:embed default_corpus.txt
var embeddedCorpus string

//go:embed default_fallback.txt
var embeddedFallback string

// Corpus is the frequency oracle: a reference vocabulary ordered from most
// to least frequent, with a relative usage score per word.
type Corpus struct {
	ranked []string
	score  map[string]float64
}

// Entry pairs a word with its relative usage frequency.
type Entry struct {
	Word  string
	Score float64
}

// LoadCorpus reads a corpus file, or the embedded default when path is empty.
func LoadCorpus(path string) (*Corpus, error) {
	var r io.Reader
	if path == "" {
		r = strings.NewReader(embeddedCorpus)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	entries, err := parseCorpus(r)
	if err != nil {
		return nil, err
	}
	return NewCorpus(entries), nil
}

// NewCorpus builds a Corpus from entries. Entries are re-sorted by descending
// score so TopN ordering never depends on input file ordering. Duplicate words
// keep their first (highest) score.
func NewCorpus(entries []Entry) *Corpus {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	c := &Corpus{score: make(map[string]float64, len(entries))}
	for _, e := range entries {
		w := normalize(e.Word)
		if w == "" {
			continue
		}
		if _, dup := c.score[w]; dup {
			continue
		}
		c.ranked = append(c.ranked, w)
		c.score[w] = e.Score
	}
	return c
}

// TopN returns the n most frequent words, most frequent first.
// The returned slice aliases internal state and must not be mutated.
func (c *Corpus) TopN(n int) []string {
	if n <= 0 {
		return nil
	}
	if n > len(c.ranked) {
		n = len(c.ranked)
	}
	return c.ranked[:n]
}

// Frequency returns the relative usage score of w, or 0 if w is not in the
// corpus. Lookup is case-insensitive.
func (c *Corpus) Frequency(w string) float64 {
	return c.score[strings.ToLower(w)]
}

// Size reports the number of distinct corpus words.
func (c *Corpus) Size() int { return len(c.ranked) }

// parseCorpus reads "word score" lines. Blank lines and #-comments are skipped.
func parseCorpus(r io.Reader) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		score, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		out = append(out, Entry{Word: fields[0], Score: score})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("words: corpus is empty")
	}
	return out, nil
}

// Dictionary is the fallback word list: exhaustive, carries no frequency
// signal, held sorted for deterministic iteration.
type Dictionary struct {
	sorted []string
	set    map[string]struct{}
}

// LoadDictionary reads a word-per-line file, or the embedded default when
// path is empty.
func LoadDictionary(path string) (*Dictionary, error) {
	var r io.Reader
	if path == "" {
		r = strings.NewReader(embeddedFallback)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var list []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list = append(list, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.New("words: fallback dictionary is empty")
	}
	return NewDictionary(list), nil
}

// NewDictionary builds a Dictionary from a word list, normalizing and
// deduplicating on the way in.
func NewDictionary(list []string) *Dictionary {
	d := &Dictionary{set: make(map[string]struct{}, len(list))}
	for _, w := range list {
		w = normalize(w)
		if w == "" {
			continue
		}
		if _, dup := d.set[w]; dup {
			continue
		}
		d.set[w] = struct{}{}
		d.sorted = append(d.sorted, w)
	}
	sort.Strings(d.sorted)
	return d
}

// Contains reports whether w is in the dictionary (case-insensitive).
func (d *Dictionary) Contains(w string) bool {
	_, ok := d.set[strings.ToLower(w)]
	return ok
}

// Words returns all dictionary words in ascending lexicographic order.
// The returned slice aliases internal state and must not be mutated.
func (d *Dictionary) Words() []string { return d.sorted }

// Size reports the number of distinct dictionary words.
func (d *Dictionary) Size() int { return len(d.sorted) }

// normalize lowercases w and rejects anything that is not purely a–z.
func normalize(w string) string {
	w = strings.ToLower(strings.TrimSpace(w))
	if w == "" || !IsAlpha(w) {
		return ""
	}
	return w
}

// IsAlpha reports whether s consists only of lowercase ASCII letters a–z.
func IsAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
