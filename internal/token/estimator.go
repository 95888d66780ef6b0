// Package token approximates model token counts for chunk sizing.
// Estimates are used purely for budget decisions, never as exact truth.
package token

import (
	"strings"
	"unicode"
)

// DefaultCharsPerToken is the rough character-to-token ratio for English
// prose and Markdown.
const DefaultCharsPerToken = 4.0

// WordsPerToken approximates how many tokens a whitespace-delimited word
// expands to (tokenizers split punctuation and subwords).
const WordsPerToken = 0.75

// Estimator approximates how many tokens a string will consume.
type Estimator interface {
	// Estimate returns the approximate token count for text.
	Estimate(text string) int

	// CharsPerToken returns the estimator's character-to-token ratio,
	// used to derive character targets from token budgets.
	CharsPerToken() float64
}

// CharEstimator estimates tokens from raw character length.
type CharEstimator struct {
	ratio float64
}

// NewCharEstimator creates a character-ratio estimator.
// ratio <= 0 falls back to DefaultCharsPerToken.
func NewCharEstimator(ratio float64) *CharEstimator {
	if ratio <= 0 {
		ratio = DefaultCharsPerToken
	}
	return &CharEstimator{ratio: ratio}
}

// Estimate returns len(text)/ratio, rounded up, minimum 1 for non-empty text.
func (e *CharEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(len(text))/e.ratio + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

// CharsPerToken returns the configured ratio.
func (e *CharEstimator) CharsPerToken() float64 {
	return e.ratio
}

// WordEstimator estimates tokens from word count, weighting punctuation-heavy
// text more heavily than plain prose.
type WordEstimator struct{}

// NewWordEstimator creates a word-count estimator.
func NewWordEstimator() *WordEstimator {
	return &WordEstimator{}
}

// Estimate counts whitespace-delimited words and scales by WordsPerToken,
// adding one token per standalone punctuation cluster.
func (e *WordEstimator) Estimate(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	words := strings.FieldsFunc(text, unicode.IsSpace)
	punct := 0
	for _, w := range words {
		if isPunctuation(w) {
			punct++
		}
	}

	n := int(float64(len(words)-punct)/WordsPerToken+0.5) + punct
	if n < 1 {
		n = 1
	}
	return n
}

// CharsPerToken returns the default ratio; the word estimator has no ratio
// of its own but the chunker still needs a character target for raw splits.
func (e *WordEstimator) CharsPerToken() float64 {
	return DefaultCharsPerToken
}

func isPunctuation(word string) bool {
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ForStrategy returns the estimator for a configured strategy name.
// Unknown strategies fall back to the char estimator.
func ForStrategy(strategy string, charsPerToken float64) Estimator {
	switch strategy {
	case "word":
		return NewWordEstimator()
	default:
		return NewCharEstimator(charsPerToken)
	}
}
