// internal/parser/parser.go
//
// Pure text classification for the word-chain opponent's messages.
//
// Responsibilities:
//   - ParsePrompt: extract (start letter, minimum length) from a prompt-shaped
//     message ("... word must start with X and include at least N letters ...").
//   - ClassifyReply: map an opponent reply onto one of three fixed verdict
//     templates (accepted / not in word list / already used) or Other.
//   - BareWords: split ordinary chat text into its alphabetic tokens.
//
// Everything here is side-effect free. Malformed or ambiguous input never
// errors; it yields a nil prompt or an Other verdict.

package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// Prompt is the constraint the opponent issues for the next word.
type Prompt struct {
	StartLetter rune // lowercase a–z
	MinLength   int
}

// VerdictKind classifies an opponent reply to a submitted word.
type VerdictKind int

const (
	VerdictOther VerdictKind = iota
	VerdictAccepted
	VerdictRejectedUnknown
	VerdictRejectedDuplicate
)

// Verdict is the classified reply plus the word it refers to (lowercased).
// Word is empty for VerdictOther.
type Verdict struct {
	Kind VerdictKind
	Word string
}

var (
	// Prompt template. The opponent decorates prompts heavily, so only the
	// constraint clause is matched, anywhere in the message.
	promptRe = regexp.MustCompile(`(?i)start(?:s)?\s+with\s+"?([a-z])"?\b.*?at\s+least\s+(\d+)\s+letters`)

	// Reply templates, matched after stripping everything but letters and
	// spaces (the opponent wraps verdicts in emoji and punctuation).
	acceptedRe  = regexp.MustCompile(`^([a-z]+) is accepted\b`)
	unknownRe   = regexp.MustCompile(`^([a-z]+) is not in my word list\b`)
	duplicateRe = regexp.MustCompile(`^([a-z]+) has been used\b`)

	bareWordRe  = regexp.MustCompile(`[a-zA-Z]+`)
	nonAlphaRe  = regexp.MustCompile(`[^a-zA-Z ]+`)
	multiSpaced = regexp.MustCompile(`\s+`)
)

// ParsePrompt extracts the constraint from a prompt-shaped message.
// Returns nil if the text does not match the prompt template.
func ParsePrompt(text string) *Prompt {
	m := promptRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n <= 0 {
		return nil
	}
	return &Prompt{
		StartLetter: rune(strings.ToLower(m[1])[0]),
		MinLength:   n,
	}
}

// ClassifyReply maps an opponent reply onto a Verdict. Non-alphabetic
// characters are stripped before matching so decorations never break the
// fixed templates.
func ClassifyReply(text string) Verdict {
	clean := normalizeReply(text)
	if m := acceptedRe.FindStringSubmatch(clean); m != nil {
		return Verdict{Kind: VerdictAccepted, Word: m[1]}
	}
	if m := unknownRe.FindStringSubmatch(clean); m != nil {
		return Verdict{Kind: VerdictRejectedUnknown, Word: m[1]}
	}
	if m := duplicateRe.FindStringSubmatch(clean); m != nil {
		return Verdict{Kind: VerdictRejectedDuplicate, Word: m[1]}
	}
	return Verdict{Kind: VerdictOther}
}

// BareWords returns the alphabetic tokens of text, lowercased, in order.
func BareWords(text string) []string {
	raw := bareWordRe.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, w := range raw {
		out = append(out, strings.ToLower(w))
	}
	return out
}

// normalizeReply strips everything but letters and spaces, collapses runs of
// whitespace, trims, and lowercases.
func normalizeReply(text string) string {
	clean := nonAlphaRe.ReplaceAllString(text, " ")
	clean = multiSpaced.ReplaceAllString(clean, " ")
	return strings.ToLower(strings.TrimSpace(clean))
}
