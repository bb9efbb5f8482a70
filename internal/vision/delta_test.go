package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func toks(words ...string) []Token {
	out := make([]Token, 0, len(words))
	for _, w := range words {
		out = append(out, Token{Text: w})
	}
	return out
}

func texts(tokens []Token) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Text)
	}
	return out
}

func TestDeltaFirstFrameIsAllNew(t *testing.T) {
	t.Parallel()
	d := newDeltaTracker()

	fresh := d.diff("m1", toks("hello", "world"))
	assert.Equal(t, []string{"hello", "world"}, texts(fresh))
}

func TestDeltaOnlyNewTokensSurvive(t *testing.T) {
	t.Parallel()
	d := newDeltaTracker()

	d.diff("m1", toks("hello", "world"))
	fresh := d.diff("m1", toks("hello", "world", "again"))
	assert.Equal(t, []string{"again"}, texts(fresh))
}

func TestDeltaIdenticalFrameIsEmpty(t *testing.T) {
	t.Parallel()
	d := newDeltaTracker()

	d.diff("m1", toks("a", "b"))
	fresh := d.diff("m1", toks("a", "b"))
	assert.Empty(t, fresh)
}

func TestDeltaCountsRepeatedTokens(t *testing.T) {
	t.Parallel()
	d := newDeltaTracker()

	d.diff("m1", toks("error"))
	fresh := d.diff("m1", toks("error", "error"))
	assert.Equal(t, []string{"error"}, texts(fresh), "second occurrence is new")
}

func TestDeltaBaselineReplacedNotAccumulated(t *testing.T) {
	t.Parallel()
	d := newDeltaTracker()

	d.diff("m1", toks("a"))
	d.diff("m1", toks("b"))
	fresh := d.diff("m1", toks("a"))
	assert.Equal(t, []string{"a"}, texts(fresh), "delta compares against the immediately previous frame only")
}

func TestDeltaIsPerMonitor(t *testing.T) {
	t.Parallel()
	d := newDeltaTracker()

	d.diff("m1", toks("shared"))
	fresh := d.diff("m2", toks("shared"))
	assert.Equal(t, []string{"shared"}, texts(fresh))
}
