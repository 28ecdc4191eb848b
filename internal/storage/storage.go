package storage

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"schoollibrary/internal/models"
)

// Keys of the library key-value store
const (
	KeyBooks       = "library_books"
	KeyLoans       = "library_loans"
	KeyAPIKey      = "library_api_key"
	KeyAIModel     = "library_ai_model"
	KeyLoggedIn    = "library_logged_in"
	KeyCurrentUser = "library_current_user"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Storage defines the key-value store the library persists into
type Storage interface {
	// Get returns the value stored under key; ok is false when the key is absent
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// SetMany writes every value or none of them
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, key string) error

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// Snapshot is the full state of the catalog as persisted
type Snapshot struct {
	Books []models.Book
	Loans []models.Loan

	// HasBooks and HasLoans report whether the keys existed when loaded
	HasBooks bool
	HasLoans bool
}

// Load reads both collections from s
func Load(ctx context.Context, s Storage) (Snapshot, error) {
	var snap Snapshot

	raw, ok, err := s.Get(ctx, KeyBooks)
	if err != nil {
		return snap, fmt.Errorf("failed to load books: %w", err)
	}
	if ok {
		if err := json.UnmarshalFromString(raw, &snap.Books); err != nil {
			return snap, fmt.Errorf("failed to decode books: %w", err)
		}
		snap.HasBooks = true
	}

	raw, ok, err = s.Get(ctx, KeyLoans)
	if err != nil {
		return snap, fmt.Errorf("failed to load loans: %w", err)
	}
	if ok {
		if err := json.UnmarshalFromString(raw, &snap.Loans); err != nil {
			return snap, fmt.Errorf("failed to decode loans: %w", err)
		}
		snap.HasLoans = true
	}

	return snap, nil
}

// Save overwrites both collections in s in a single atomic write,
// so a failure never leaves new books next to old loans.
func Save(ctx context.Context, s Storage, snap Snapshot) error {
	books := snap.Books
	if books == nil {
		books = []models.Book{}
	}
	loans := snap.Loans
	if loans == nil {
		loans = []models.Loan{}
	}

	rawBooks, err := json.MarshalToString(books)
	if err != nil {
		return fmt.Errorf("failed to encode books: %w", err)
	}
	rawLoans, err := json.MarshalToString(loans)
	if err != nil {
		return fmt.Errorf("failed to encode loans: %w", err)
	}

	err = s.SetMany(ctx, map[string]string{
		KeyBooks: rawBooks,
		KeyLoans: rawLoans,
	})
	if err != nil {
		return fmt.Errorf("failed to save catalog: %w", err)
	}
	return nil
}
