package brain

import (
	"strings"
	"sync"
	"unicode"
)

// Small-talk categories whose replies are reused across calls.
const (
	CategoryGreeting  = "greeting"
	CategoryWellbeing = "wellbeing"
	CategoryGratitude = "gratitude"
	CategoryFarewell  = "farewell"
)

// maxSmallTalkWords keeps substantive questions that open with "hi" out of the cache.
const maxSmallTalkWords = 8

// Classify returns the small-talk category of text, or "" for anything else.
// Matching is on whole words.
func Classify(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	if len(words) == 0 || len(words) > maxSmallTalkWords {
		return ""
	}
	joined := " " + strings.Join(words, " ") + " "

	has := func(w ...string) bool {
		for _, s := range w {
			if strings.Contains(joined, " "+s+" ") {
				return true
			}
		}
		return false
	}
	switch {
	case has("hello", "hi", "hey"):
		return CategoryGreeting
	case has("how are you", "how do you do"):
		return CategoryWellbeing
	case has("thank", "thanks", "thank you"):
		return CategoryGratitude
	case has("bye", "goodbye"):
		return CategoryFarewell
	}
	return ""
}

// ReplyCache is a bounded FIFO of replies keyed by small-talk category.
type ReplyCache struct {
	mu    sync.Mutex
	max   int
	order []string
	items map[string]string
}

// NewReplyCache returns a cache holding at most max replies. A max of zero
// disables caching.
func NewReplyCache(max int) *ReplyCache {
	if max < 0 {
		max = 0
	}
	return &ReplyCache{max: max, items: make(map[string]string)}
}

func (c *ReplyCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *ReplyCache) Put(key, reply string) {
	if c.max == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok {
		c.order = append(c.order, key)
	}
	c.items[key] = reply
	for len(c.order) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}
}

func (c *ReplyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
