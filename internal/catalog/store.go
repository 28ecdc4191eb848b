// Package catalog owns the book inventory and the loan lifecycle of the school library.
//
// Store is the only mutation surface for books and loans. Every successful operation
// writes both collections through to the injected storage.Storage; when that write
// fails the in-memory state is left as it was before the call.
package catalog

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"schoollibrary/internal/models"
	"schoollibrary/internal/storage"
)

// Store holds the catalog in memory and persists it on every change
type Store struct {
	mu     sync.Mutex
	db     storage.Storage
	logger *zap.Logger

	now       func() time.Time
	intn      func(n int) int
	newLoanID func() string
	seed      bool

	books []models.Book
	loans []models.Loan
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRandom replaces the random source used for book ids; intn must return a value in [0, n)
func WithRandom(intn func(n int) int) Option {
	return func(s *Store) { s.intn = intn }
}

// WithLoanIDs replaces the loan id generator
func WithLoanIDs(next func() string) Option {
	return func(s *Store) { s.newLoanID = next }
}

// WithDemoData seeds the starter catalog when the store has never been written
func WithDemoData() Option {
	return func(s *Store) { s.seed = true }
}

// New loads the catalog from db
func New(ctx context.Context, db storage.Storage, logger *zap.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		db:        db,
		logger:    logger,
		now:       time.Now,
		intn:      rand.IntN,
		newLoanID: newLoanID,
	}
	for _, opt := range opts {
		opt(s)
	}

	snap, err := storage.Load(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	s.books = snap.Books
	s.loans = snap.Loans

	if s.seed && (!snap.HasBooks || !snap.HasLoans) {
		if !snap.HasBooks {
			s.books = demoBooks()
		}
		if !snap.HasLoans {
			s.loans = demoLoans()
		}
		if err := s.commit(ctx, s.books, s.loans); err != nil {
			return nil, fmt.Errorf("failed to seed catalog: %w", err)
		}
		logger.Info("Seeded demo catalog",
			zap.Int("books", len(s.books)),
			zap.Int("loans", len(s.loans)),
		)
	}

	logger.Info("Catalog loaded",
		zap.Int("books", len(s.books)),
		zap.Int("loans", len(s.loans)),
	)
	return s, nil
}

// commit persists the new collections and swaps them in only if the write succeeded.
// Callers must hold s.mu.
func (s *Store) commit(ctx context.Context, books []models.Book, loans []models.Loan) error {
	if err := storage.Save(ctx, s.db, storage.Snapshot{Books: books, Loans: loans}); err != nil {
		s.logger.Error("Failed to persist catalog", zap.Error(err))
		return err
	}
	s.books = books
	s.loans = loans
	return nil
}

func bookIndex(books []models.Book, id string) int {
	return slices.IndexFunc(books, func(b models.Book) bool { return b.ID == id })
}

func loanIndex(loans []models.Loan, id string) int {
	return slices.IndexFunc(loans, func(l models.Loan) bool { return l.ID == id })
}

// restock puts one copy of bookID back on the shelf, never above the book's total.
// A missing book is skipped.
func (s *Store) restock(books []models.Book, bookID string) {
	i := bookIndex(books, bookID)
	if i < 0 {
		s.logger.Warn("Book of returned loan no longer exists", zap.String("book_id", bookID))
		return
	}
	if books[i].Available >= books[i].Total {
		s.logger.Warn("Book already fully on shelf, availability not increased",
			zap.String("book_id", bookID),
			zap.Int("available", books[i].Available),
			zap.Int("total", books[i].Total),
		)
		return
	}
	books[i].Available++
}

func demoBooks() []models.Book {
	return []models.Book{
		{ID: "VH0001", Title: "Số đỏ", Author: "Vũ Trọng Phụng", Category: models.CategoryLiterature, Total: 5, Available: 3},
		{ID: "VH0002", Title: "Nhà giả kim", Author: "Paulo Coelho", Category: models.CategoryLiterature, Total: 8, Available: 5},
		{ID: "KH0001", Title: "Bài tập Toán nâng cao 10", Author: "Nguyễn Văn A", Category: models.CategoryScience, Total: 10, Available: 7},
		{ID: "LS0001", Title: "Đại Việt sử ký toàn thư", Author: "Ngô Sĩ Liên", Category: models.CategoryHistoryGeography, Total: 3, Available: 3},
	}
}

func demoLoans() []models.Loan {
	return []models.Loan{
		{
			ID:           "L001",
			BookID:       "VH0001",
			BookTitle:    "Số đỏ",
			StudentName:  "Nguyễn Văn Nam",
			StudentClass: "12A1",
			LoanDate:     time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC),
			DueDate:      time.Date(2023, 10, 15, 0, 0, 0, 0, time.UTC),
			Status:       models.LoanOverdue,
			FineAmount:   50000,
		},
	}
}
