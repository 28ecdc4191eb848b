package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"schoollibrary/internal/models"
)

func validateNewBook(nb models.NewBook) error {
	if strings.TrimSpace(nb.Title) == "" {
		return fmt.Errorf("empty title: %w", ErrInvalidBook)
	}
	if !nb.Category.Valid() {
		return fmt.Errorf("unknown category %q: %w", nb.Category, ErrInvalidBook)
	}
	if nb.Total < 0 {
		return fmt.Errorf("negative total: %w", ErrInvalidBook)
	}
	return nil
}

// AddBook registers a new title with every copy on the shelf
func (s *Store) AddBook(ctx context.Context, nb models.NewBook) (models.Book, error) {
	if err := validateNewBook(nb); err != nil {
		return models.Book{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	books, added, err := s.appendBooks(s.books, []models.NewBook{nb})
	if err != nil {
		return models.Book{}, err
	}
	if err := s.commit(ctx, books, s.loans); err != nil {
		return models.Book{}, err
	}

	s.logger.Info("Book added",
		zap.String("book_id", added[0].ID),
		zap.String("title", added[0].Title),
		zap.Int("total", added[0].Total),
	)
	return added[0], nil
}

// ImportBooks adds a reviewed batch of books in one write.
// The batch is rejected as a whole if any entry is invalid.
func (s *Store) ImportBooks(ctx context.Context, batch []models.NewBook) ([]models.Book, error) {
	for i, nb := range batch {
		if err := validateNewBook(nb); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
	}
	if len(batch) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	books, added, err := s.appendBooks(s.books, batch)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, books, s.loans); err != nil {
		return nil, err
	}

	s.logger.Info("Books imported", zap.Int("count", len(added)))
	return added, nil
}

func (s *Store) appendBooks(current []models.Book, batch []models.NewBook) ([]models.Book, []models.Book, error) {
	books := slices.Clone(current)
	added := make([]models.Book, 0, len(batch))
	for _, nb := range batch {
		id, err := s.generateBookID(nb.Category, books)
		if err != nil {
			return nil, nil, err
		}
		b := models.Book{
			ID:        id,
			Title:     strings.TrimSpace(nb.Title),
			Author:    strings.TrimSpace(nb.Author),
			Category:  nb.Category,
			Total:     nb.Total,
			Available: nb.Total,
		}
		books = append(books, b)
		added = append(added, b)
	}
	return books, added, nil
}

// UpdateBook merges an administrative edit into a book.
// Availability is not reconciled with outstanding loans; only the category is checked.
func (s *Store) UpdateBook(ctx context.Context, id string, upd models.BookUpdate) (models.Book, error) {
	if upd.Category != nil && !upd.Category.Valid() {
		return models.Book{}, fmt.Errorf("unknown category %q: %w", *upd.Category, ErrInvalidBook)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	books := slices.Clone(s.books)
	i := bookIndex(books, id)
	if i < 0 {
		return models.Book{}, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}

	b := &books[i]
	if upd.Title != nil {
		b.Title = *upd.Title
	}
	if upd.Author != nil {
		b.Author = *upd.Author
	}
	if upd.Category != nil {
		b.Category = *upd.Category
	}
	if upd.Total != nil {
		b.Total = *upd.Total
	}
	if upd.Available != nil {
		b.Available = *upd.Available
	}

	if err := s.commit(ctx, books, s.loans); err != nil {
		return models.Book{}, err
	}

	s.logger.Info("Book updated", zap.String("book_id", id))
	return books[i], nil
}

// DeleteBook removes a book. Loans referencing it are kept with their denormalized title.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := bookIndex(s.books, id)
	if i < 0 {
		return fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	books := slices.Delete(slices.Clone(s.books), i, i+1)

	if err := s.commit(ctx, books, s.loans); err != nil {
		return err
	}

	s.logger.Info("Book deleted", zap.String("book_id", id))
	return nil
}

// Books returns a copy of the catalog
func (s *Store) Books() []models.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.books)
}

// Book returns one book by id
func (s *Store) Book(id string) (models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := bookIndex(s.books, id)
	if i < 0 {
		return models.Book{}, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	return s.books[i], nil
}

// SearchBooks matches query against title, author and id, ignoring case.
// An empty query returns the whole catalog.
func (s *Store) SearchBooks(query string) []models.Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(query))
	var out []models.Book
	for _, b := range s.books {
		if q == "" ||
			strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.Author), q) ||
			strings.Contains(strings.ToLower(b.ID), q) {
			out = append(out, b)
		}
	}
	return out
}

// AvailableBooks returns books with a copy on the shelf whose title or id matches query
func (s *Store) AvailableBooks(query string) []models.Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(query))
	var out []models.Book
	for _, b := range s.books {
		if b.Available <= 0 {
			continue
		}
		if q == "" ||
			strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.ID), q) {
			out = append(out, b)
		}
	}
	return out
}
