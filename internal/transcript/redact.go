package transcript

import (
	"context"
	"regexp"
)

type redactionRule struct {
	pattern *regexp.Regexp
	marker  string
}

// Order matters: card numbers would otherwise be caught by the phone rule.
var redactionRules = []redactionRule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[REDACTED_SSN]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// Redact masks emails, social security, card and phone numbers in text.
func Redact(text string) (string, bool) {
	out := text
	changed := false
	for _, rule := range redactionRules {
		next := rule.pattern.ReplaceAllString(out, rule.marker)
		if next != out {
			changed = true
			out = next
		}
	}
	return out, changed
}

type redactingStore struct {
	Store
}

// WithRedaction wraps s so every saved turn is redacted first.
func WithRedaction(s Store) Store {
	if _, ok := s.(redactingStore); ok {
		return s
	}
	return redactingStore{Store: s}
}

func (s redactingStore) SaveTurn(ctx context.Context, turn Turn) error {
	var changed bool
	turn.Content, changed = Redact(turn.Content)
	turn.PIIRedacted = turn.PIIRedacted || changed
	return s.Store.SaveTurn(ctx, turn)
}

// Forget passes through to stores that keep turns in process memory.
func (s redactingStore) Forget(callSID string) {
	if f, ok := s.Store.(interface{ Forget(string) }); ok {
		f.Forget(callSID)
	}
}
