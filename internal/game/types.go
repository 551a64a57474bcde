// internal/game/types.go
//
// Core type definitions for the word-selection engine.
// Defines:
//   - Strategy: the per-chat selection policy, fixed at enable time.
//   - Constraint: the active (start letter, minimum length) requirement.
//   - Pick: a successful selection result.
//   - Oracle / Exclusions: the engine's two collaborators.

package game

import (
	"fmt"
	"strings"
)

// Strategy selects which candidate-ordering policy the engine applies.
// Possible values:
//   - "frequency":       highest corpus frequency wins outright.
//   - "suffix_priority": words ending in rare letters are preferred first,
//     falling back to plain frequency order.
type Strategy string

const (
	StrategyFrequency      Strategy = "frequency"
	StrategySuffixPriority Strategy = "suffix_priority"
)

// ParseStrategy validates a strategy name from config or the ops API.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyFrequency:
		return StrategyFrequency, nil
	case StrategySuffixPriority:
		return StrategySuffixPriority, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Constraint is the opponent-issued requirement the next word must satisfy.
type Constraint struct {
	StartLetter rune // lowercase a–z
	MinLength   int
}

// Admits reports whether w (lowercase) satisfies the constraint.
func (c Constraint) Admits(w string) bool {
	return len(w) >= c.MinLength && len(w) > 0 && rune(w[0]) == c.StartLetter
}

// Pick is a successful selection: the word in display form (title case) and
// its corpus score at selection time.
type Pick struct {
	Word  string
	Score float64
}

// Oracle is the frequency oracle the engine ranks candidates with.
type Oracle interface {
	// TopN returns the n most frequent corpus words, most frequent first.
	TopN(n int) []string
	// Frequency returns a relative usage score, 0 if unknown.
	Frequency(word string) float64
}

// Exclusions is the engine's view of a chat's used-word set.
// Reserve must atomically test-and-add: it returns false when the word was
// already present, in which case the engine moves on to the next candidate.
type Exclusions interface {
	Contains(word string) bool
	Reserve(word string) bool
}
