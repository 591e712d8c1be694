package ai

import "context"

// Client turns recognized handwriting into organized notes.
type Client interface {
	Restructure(ctx context.Context, text string) (string, error)
}
