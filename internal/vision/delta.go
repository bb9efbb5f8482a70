package vision

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// deltaTracker remembers the last-emitted token set per monitor so the
// producer can emit only the text that newly appeared on screen.
type deltaTracker struct {
	previous *cache.Cache
}

func newDeltaTracker() *deltaTracker {
	return &deltaTracker{
		previous: cache.New(cache.NoExpiration, time.Hour),
	}
}

// diff returns the tokens present in curr that were absent in the previous
// frame on the same monitor, then replaces the stored baseline. Token
// identity is its text; repeated occurrences count separately so a word
// appearing one more time than before is new.
func (d *deltaTracker) diff(monitorID string, curr []Token) []Token {
	var prev []Token
	if v, ok := d.previous.Get(monitorID); ok {
		prev = v.([]Token)
	}

	seen := make(map[string]int, len(prev))
	for _, tok := range prev {
		seen[tok.Text]++
	}

	var fresh []Token
	for _, tok := range curr {
		if seen[tok.Text] > 0 {
			seen[tok.Text]--
			continue
		}
		fresh = append(fresh, tok)
	}

	d.previous.Set(monitorID, curr, cache.NoExpiration)
	return fresh
}
