package catalog

import (
	"fmt"

	"github.com/google/uuid"

	"schoollibrary/internal/models"
)

const (
	bookNumberMin  = 1000
	bookNumberSpan = 9000
	maxRandomDraws = 32
)

// generateBookID draws prefix+NNNN ids until one is not taken.
// After maxRandomDraws collisions it takes the lowest free number, so a full category is the only failure.
func (s *Store) generateBookID(category models.Category, books []models.Book) (string, error) {
	taken := make(map[string]bool, len(books))
	for _, b := range books {
		taken[b.ID] = true
	}

	prefix := category.Prefix()
	for i := 0; i < maxRandomDraws; i++ {
		id := fmt.Sprintf("%s%04d", prefix, bookNumberMin+s.intn(bookNumberSpan))
		if !taken[id] {
			return id, nil
		}
	}

	for n := bookNumberMin; n < bookNumberMin+bookNumberSpan; n++ {
		id := fmt.Sprintf("%s%04d", prefix, n)
		if !taken[id] {
			return id, nil
		}
	}
	return "", fmt.Errorf("%s: %w", category, ErrIDSpaceExhausted)
}

func newLoanID() string {
	return "L" + uuid.NewString()
}
