package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCharEstimator_Estimate(t *testing.T) {
	e := NewCharEstimator(4)

	assert.Equal(t, 0, e.Estimate(""))
	assert.Equal(t, 1, e.Estimate("ab"))
	assert.Equal(t, 25, e.Estimate(strings.Repeat("x", 100)))
	assert.Equal(t, 4.0, e.CharsPerToken())
}

func TestCharEstimator_BadRatioFallsBack(t *testing.T) {
	e := NewCharEstimator(0)
	assert.Equal(t, DefaultCharsPerToken, e.CharsPerToken())

	e = NewCharEstimator(-2)
	assert.Equal(t, DefaultCharsPerToken, e.CharsPerToken())
}

func TestWordEstimator_Estimate(t *testing.T) {
	e := NewWordEstimator()

	assert.Equal(t, 0, e.Estimate(""))
	assert.Equal(t, 0, e.Estimate("   \n\t"))

	// 3 words at 0.75 words/token ⇒ 4 tokens.
	assert.Equal(t, 4, e.Estimate("the quick fox"))

	// Standalone punctuation counts one token each.
	withPunct := e.Estimate("a - b")
	plain := e.Estimate("a b")
	assert.Greater(t, withPunct, plain)
}

func TestForStrategy(t *testing.T) {
	assert.IsType(t, &WordEstimator{}, ForStrategy("word", 0))
	assert.IsType(t, &CharEstimator{}, ForStrategy("char", 4))
	assert.IsType(t, &CharEstimator{}, ForStrategy("anything-else", 4))
}

func TestEstimatesScaleWithLength(t *testing.T) {
	long := strings.Repeat("some words about notes ", 50)
	short := "some words about notes"

	for _, e := range []Estimator{NewCharEstimator(4), NewWordEstimator()} {
		assert.Greater(t, e.Estimate(long), e.Estimate(short))
	}
}
