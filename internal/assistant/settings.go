package assistant

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"schoollibrary/internal/storage"
)

// DefaultModel is used until the librarian picks another one
const DefaultModel = "gemini-3-pro-preview"

// FallbackModels are tried in order after the preferred model fails
var FallbackModels = []string{
	"gemini-3-flash-preview",
	"gemini-3-pro-preview",
	"gemini-2.5-flash",
}

// ErrUnknownModel is returned by SetModel for a model outside FallbackModels
var ErrUnknownModel = errors.New("unknown AI model")

// Settings stores the API key and model choice next to the catalog
type Settings struct {
	db     storage.Storage
	envKey string
}

// NewSettings creates settings backed by db; envKey is used when no key was saved
func NewSettings(db storage.Storage, envKey string) *Settings {
	return &Settings{db: db, envKey: envKey}
}

// APIKey returns the saved key, then the environment key, or "" when neither is set
func (s *Settings) APIKey(ctx context.Context) (string, error) {
	key, ok, err := s.db.Get(ctx, storage.KeyAPIKey)
	if err != nil {
		return "", fmt.Errorf("failed to read api key: %w", err)
	}
	if ok && key != "" {
		return key, nil
	}
	return s.envKey, nil
}

// SetAPIKey saves the key, overriding the environment key
func (s *Settings) SetAPIKey(ctx context.Context, key string) error {
	if err := s.db.Set(ctx, storage.KeyAPIKey, key); err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}
	return nil
}

// Model returns the preferred model
func (s *Settings) Model(ctx context.Context) (string, error) {
	model, ok, err := s.db.Get(ctx, storage.KeyAIModel)
	if err != nil {
		return "", fmt.Errorf("failed to read ai model: %w", err)
	}
	if !ok || model == "" {
		return DefaultModel, nil
	}
	return model, nil
}

// SetModel saves the preferred model; only FallbackModels are accepted
func (s *Settings) SetModel(ctx context.Context, model string) error {
	if !slices.Contains(FallbackModels, model) {
		return fmt.Errorf("%s: %w", model, ErrUnknownModel)
	}
	if err := s.db.Set(ctx, storage.KeyAIModel, model); err != nil {
		return fmt.Errorf("failed to save ai model: %w", err)
	}
	return nil
}

// Clear removes the saved key and model
func (s *Settings) Clear(ctx context.Context) error {
	if err := s.db.Delete(ctx, storage.KeyAPIKey); err != nil {
		return fmt.Errorf("failed to clear api key: %w", err)
	}
	if err := s.db.Delete(ctx, storage.KeyAIModel); err != nil {
		return fmt.Errorf("failed to clear ai model: %w", err)
	}
	return nil
}

// modelOrder puts preferred first followed by the remaining fallbacks
func modelOrder(preferred string) []string {
	order := []string{preferred}
	for _, m := range FallbackModels {
		if m != preferred {
			order = append(order, m)
		}
	}
	return order
}
