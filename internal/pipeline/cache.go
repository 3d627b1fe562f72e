package pipeline

import (
	"strings"
	"sync"
)

// Phrase is a canned reply registered with the response cache. Key is a short
// semantic name such as "greeting"; Text is matched against synthesis input.
type Phrase struct {
	Key  string
	Text string
}

// Normalize lowercases and trims text for phrase matching.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// ResponseCache maps canned phrases to audio ids held by the audio store. The
// ids are weak references: callers must confirm they still resolve.
type ResponseCache struct {
	registry []Phrase

	mu  sync.RWMutex
	ids map[string]string
}

// NewResponseCache builds a cache over phrases in the given order, which is the
// match order. Blank phrases are dropped; a repeated key keeps its first text.
func NewResponseCache(phrases []Phrase) *ResponseCache {
	registry := make([]Phrase, 0, len(phrases))
	seen := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		text := Normalize(p.Text)
		if text == "" {
			continue
		}
		key := strings.TrimSpace(p.Key)
		if key == "" {
			key = text
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		registry = append(registry, Phrase{Key: key, Text: text})
	}
	return &ResponseCache{
		registry: registry,
		ids:      make(map[string]string),
	}
}

// Match returns the first registered phrase that contains the normalized text
// or is contained by it.
func (c *ResponseCache) Match(text string) (Phrase, bool) {
	if c == nil {
		return Phrase{}, false
	}
	norm := Normalize(text)
	if norm == "" {
		return Phrase{}, false
	}
	for _, p := range c.registry {
		if strings.Contains(norm, p.Text) || strings.Contains(p.Text, norm) {
			return p, true
		}
	}
	return Phrase{}, false
}

// Lookup returns the audio id recorded for the phrase text matches, if any.
func (c *ResponseCache) Lookup(text string) (string, bool) {
	p, ok := c.Match(text)
	if !ok {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[p.Key]
	return id, ok
}

// Record associates id with the phrase text matches. Text that matches no
// canned phrase is ignored and false is returned.
func (c *ResponseCache) Record(text, id string) bool {
	if id == "" {
		return false
	}
	p, ok := c.Match(text)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[p.Key] = id
	return true
}

// Recorded reports whether the phrase with key has an audio id.
func (c *ResponseCache) Recorded(key string) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ids[key]
	return ok
}

func (c *ResponseCache) Phrases() []Phrase {
	if c == nil {
		return nil
	}
	out := make([]Phrase, len(c.registry))
	copy(out, c.registry)
	return out
}
