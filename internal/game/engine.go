// internal/game/engine.go
//
// Word-selection engine for the chain game.
// Responsibilities:
//   - Filter the oracle's top-N corpus down to legal candidates
//     (alphabetic, long enough, right first letter, not already used).
//   - Order candidates by the chat's strategy (frequency or suffix priority).
//   - Atomically reserve the chosen word in the exclusion set; a lost
//     reservation race skips to the next candidate instead of repeating.
//   - Report exhaustion explicitly when no candidate survives the filter.
//
// Notes:
//   - TopN ordering is the oracle's own frequency ordering, so "highest
//     frequency" is always "first in candidate order"; ties resolve to the
//     oracle's first match.
//   - The returned word is title-cased for display; reservations are made on
//     the lowercase form.

package game

import (
	"strings"

	"github.com/samber/lo"

	"github.com/UltimatePolymath/word/internal/words"
)

const (
	// DefaultTopN bounds the corpus slice the engine draws from. Large enough
	// that rare start letters still see candidates.
	DefaultTopN = 50000

	// DefaultSuffixFloor is the minimum corpus frequency a word needs to be
	// eligible for the first suffix-priority pass.
	DefaultSuffixFloor = 1e-6
)

// suffix scan orders for the two suffix-priority passes. The first pass
// requires the frequency floor, the second does not.
var (
	suffixFloorOrder = []byte{'x', 'z', 'y'}
	suffixFreeOrder  = []byte{'x', 'y', 'z'}
)

// Engine selects the next word for a chat under an active constraint.
type Engine struct {
	oracle      Oracle
	topN        int
	suffixFloor float64
}

// NewEngine constructs an Engine. topN and suffixFloor fall back to the
// package defaults when zero.
func NewEngine(oracle Oracle, topN int, suffixFloor float64) *Engine {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if suffixFloor <= 0 {
		suffixFloor = DefaultSuffixFloor
	}
	return &Engine{oracle: oracle, topN: topN, suffixFloor: suffixFloor}
}

// Select picks the next word satisfying c under strat, reserving it in excl
// as part of the pick. The second return is false when no legal candidate
// exists (exhaustion); the caller treats that as a hard failure.
func (e *Engine) Select(c Constraint, excl Exclusions, strat Strategy) (Pick, bool) {
	candidates := e.filter(c, excl)
	if len(candidates) == 0 {
		return Pick{}, false
	}

	order := candidates
	if strat == StrategySuffixPriority {
		order = e.suffixOrder(candidates)
	}

	// Reserve down the preference order; a false Reserve means another
	// handler claimed the word between filter and commit.
	for _, w := range order {
		if excl.Reserve(w) {
			return Pick{Word: TitleCase(w), Score: e.oracle.Frequency(w)}, true
		}
	}
	return Pick{}, false
}

// filter narrows the top-N corpus to legal candidates, preserving the
// oracle's frequency ordering.
func (e *Engine) filter(c Constraint, excl Exclusions) []string {
	return lo.Filter(e.oracle.TopN(e.topN), func(w string, _ int) bool {
		return words.IsAlpha(w) && c.Admits(w) && !excl.Contains(w)
	})
}

// suffixOrder rebuilds the candidate preference for STRATEGY=SUFFIX_PRIORITY:
//
//  1. For each suffix in x, z, y order: candidates ending in it whose
//     frequency clears the floor, most frequent first.
//  2. The same scan in x, y, z order without the floor.
//  3. Everything else in plain frequency order.
//
// candidates must already be in frequency order; within each pass that order
// is preserved, so the first element of each pass is its highest-frequency
// member.
func (e *Engine) suffixOrder(candidates []string) []string {
	ranked := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	add := func(w string) {
		if _, dup := seen[w]; !dup {
			seen[w] = struct{}{}
			ranked = append(ranked, w)
		}
	}

	for _, suf := range suffixFloorOrder {
		for _, w := range candidates {
			if w[len(w)-1] == suf && e.oracle.Frequency(w) >= e.suffixFloor {
				add(w)
			}
		}
	}
	for _, suf := range suffixFreeOrder {
		for _, w := range candidates {
			if w[len(w)-1] == suf {
				add(w)
			}
		}
	}
	for _, w := range candidates {
		add(w)
	}
	return ranked
}

// TitleCase uppercases the first letter and lowercases the rest, the display
// form every selected word is sent in.
func TitleCase(w string) string {
	if w == "" {
		return w
	}
	w = strings.ToLower(w)
	return strings.ToUpper(w[:1]) + w[1:]
}
