package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultGreeting    = "Hello, this is Saeed. What would you like to talk about?"
	FallbackAudioError = "I apologize, but I'm having trouble generating audio right now. Please try again."
	FallbackRepeat     = "I didn't catch that. Could you please repeat?"
	FallbackMissed     = "Sorry, I didn't catch that. Could you say that again?"
	FallbackBrainError = "I apologize, but I'm having trouble processing your request right now. Please try again."
)

// Phrases holds the canned texts pre-synthesized at start.
type Phrases struct {
	Greeting  string   `mapstructure:"greeting"`
	Fallbacks []string `mapstructure:"fallbacks"`
	// Extra registers additional canned phrases by semantic key.
	Extra map[string]string `mapstructure:"extra"`
}

func DefaultPhrases() Phrases {
	return Phrases{
		Greeting: DefaultGreeting,
		Fallbacks: []string{
			FallbackAudioError,
			FallbackRepeat,
			FallbackMissed,
			FallbackBrainError,
		},
	}
}

// LoadPhrases reads a yaml, json or toml phrase file. An empty path yields the
// defaults; fields missing from the file keep their default values.
func LoadPhrases(path string) (Phrases, error) {
	defaults := DefaultPhrases()
	path = strings.TrimSpace(path)
	if path == "" {
		return defaults, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("greeting", defaults.Greeting)
	v.SetDefault("fallbacks", defaults.Fallbacks)
	if err := v.ReadInConfig(); err != nil {
		return Phrases{}, fmt.Errorf("read phrases file %s: %w", path, err)
	}

	var p Phrases
	if err := v.Unmarshal(&p); err != nil {
		return Phrases{}, fmt.Errorf("decode phrases file %s: %w", path, err)
	}
	p.Greeting = strings.TrimSpace(p.Greeting)
	if p.Greeting == "" {
		return Phrases{}, fmt.Errorf("phrases file %s: greeting must not be empty", path)
	}
	fallbacks := p.Fallbacks[:0]
	for _, f := range p.Fallbacks {
		if f = strings.TrimSpace(f); f != "" {
			fallbacks = append(fallbacks, f)
		}
	}
	p.Fallbacks = fallbacks
	return p, nil
}
