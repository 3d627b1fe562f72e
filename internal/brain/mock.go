package brain

import (
	"context"
	"fmt"
	"strings"
)

// MockClient provides deterministic local replies when no model is configured.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	base := strings.TrimSpace(req.Text)
	if base == "" {
		base = "nothing yet"
	}
	return fmt.Sprintf("I heard you: %s", base), nil
}
