package pipeline

import "testing"

func TestResponseCacheMatchPolicy(t *testing.T) {
	c := NewResponseCache([]Phrase{
		{Key: "greeting", Text: "Hello"},
		{Key: "farewell", Text: "bye"},
	})

	tests := []struct {
		in      string
		wantKey string
		wantOK  bool
	}{
		{in: "hello", wantKey: "greeting", wantOK: true},
		{in: "  HELLO  ", wantKey: "greeting", wantOK: true},
		{in: "Hello there, friend", wantKey: "greeting", wantOK: true},
		{in: "hell", wantKey: "greeting", wantOK: true},
		{in: "goodbyeee, see you", wantKey: "farewell", wantOK: true},
		{in: "what is the weather", wantOK: false},
		{in: "   ", wantOK: false},
	}
	for _, tc := range tests {
		p, ok := c.Match(tc.in)
		if ok != tc.wantOK {
			t.Fatalf("Match(%q) ok = %v, want %v", tc.in, ok, tc.wantOK)
		}
		if ok && p.Key != tc.wantKey {
			t.Fatalf("Match(%q) key = %q, want %q", tc.in, p.Key, tc.wantKey)
		}
	}
}

func TestResponseCacheFirstMatchWins(t *testing.T) {
	c := NewResponseCache([]Phrase{
		{Key: "a", Text: "hello"},
		{Key: "b", Text: "hello there"},
	})
	p, ok := c.Match("hello there")
	if !ok || p.Key != "a" {
		t.Fatalf("Match() = %+v, %v, want key a", p, ok)
	}
}

func TestResponseCacheRecordOnlyCanned(t *testing.T) {
	c := NewResponseCache([]Phrase{{Key: "greeting", Text: "hello"}})

	if c.Record("tell me a story", "id-1") {
		t.Fatalf("Record() of arbitrary text = true, want false")
	}
	if _, ok := c.Lookup("tell me a story"); ok {
		t.Fatalf("Lookup() found arbitrary text")
	}

	if !c.Record("Hello", "id-2") {
		t.Fatalf("Record() of canned text = false, want true")
	}
	id, ok := c.Lookup("hello there, friend")
	if !ok || id != "id-2" {
		t.Fatalf("Lookup() = %q, %v, want id-2, true", id, ok)
	}
	if !c.Recorded("greeting") {
		t.Fatalf("Recorded(greeting) = false")
	}
}

func TestNewResponseCacheDropsBlankAndDuplicateKeys(t *testing.T) {
	c := NewResponseCache([]Phrase{
		{Key: "x", Text: "  "},
		{Key: "greeting", Text: "Hello"},
		{Key: "greeting", Text: "Howdy"},
		{Text: "Thanks"},
	})
	got := c.Phrases()
	if len(got) != 2 {
		t.Fatalf("len(Phrases()) = %d, want 2: %+v", len(got), got)
	}
	if got[0].Text != "hello" {
		t.Fatalf("Phrases()[0].Text = %q, want hello", got[0].Text)
	}
	if got[1].Key != "thanks" {
		t.Fatalf("Phrases()[1].Key = %q, want thanks", got[1].Key)
	}
}
