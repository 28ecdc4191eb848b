package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"schoollibrary/internal/models"
)

// ReturnResult describes a completed return
type ReturnResult struct {
	Loan     models.Loan
	DaysLate int
	Fine     int
}

// Late reports whether the copy came back after its due date
func (r ReturnResult) Late() bool {
	return r.Fine > 0
}

// Message is the receipt text shown to the librarian
func (r ReturnResult) Message() string {
	if !r.Late() {
		return "Book returned on time."
	}
	return fmt.Sprintf("Book returned %d day(s) late. Fine: %s", r.DaysLate, FormatMoney(r.Fine))
}

// Borrow lends one copy of bookID to a student.
// The borrow limit is not checked here; callers run CheckBorrowLimit first.
func (s *Store) Borrow(ctx context.Context, bookID, studentName, studentClass string) (models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	books := slices.Clone(s.books)
	i := bookIndex(books, bookID)
	if i < 0 {
		return models.Loan{}, fmt.Errorf("book %s: %w", bookID, ErrNotFound)
	}
	if books[i].Available <= 0 {
		return models.Loan{}, fmt.Errorf("book %s: %w", bookID, ErrOutOfStock)
	}

	now := s.now()
	loan := models.Loan{
		ID:           s.newLoanID(),
		BookID:       bookID,
		BookTitle:    books[i].Title,
		StudentName:  studentName,
		StudentClass: studentClass,
		LoanDate:     now,
		DueDate:      now.AddDate(0, 0, LoanDays),
		Status:       models.LoanActive,
	}
	books[i].Available--

	loans := append(slices.Clone(s.loans), loan)
	if err := s.commit(ctx, books, loans); err != nil {
		return models.Loan{}, err
	}

	s.logger.Info("Book borrowed",
		zap.String("loan_id", loan.ID),
		zap.String("book_id", bookID),
		zap.String("student", studentName),
		zap.String("class", studentClass),
		zap.Time("due_date", loan.DueDate),
	)
	return loan, nil
}

// Return closes a loan and computes its fine.
// A late return keeps the Overdue status with the return date set.
func (s *Store) Return(ctx context.Context, loanID string) (ReturnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loans := slices.Clone(s.loans)
	i := loanIndex(loans, loanID)
	if i < 0 {
		return ReturnResult{}, fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
	}
	loan := loans[i]
	if loan.ReturnDate != nil || loan.Status == models.LoanReturned {
		return ReturnResult{}, fmt.Errorf("loan %s: %w", loanID, ErrAlreadyReturned)
	}

	now := s.now()
	result := ReturnResult{
		DaysLate: DaysLate(loan.DueDate, now),
		Fine:     FineFor(loan.DueDate, now),
	}

	loan.ReturnDate = &now
	loan.FineAmount = result.Fine
	loan.Status = models.LoanReturned
	if result.Fine > 0 {
		loan.Status = models.LoanOverdue
	}
	loans[i] = loan

	books := slices.Clone(s.books)
	s.restock(books, loan.BookID)

	if err := s.commit(ctx, books, loans); err != nil {
		return ReturnResult{}, err
	}

	result.Loan = loan
	s.logger.Info("Book returned",
		zap.String("loan_id", loanID),
		zap.String("book_id", loan.BookID),
		zap.Int("days_late", result.DaysLate),
		zap.Int("fine", result.Fine),
	)
	return result, nil
}

// Renew extends the due date once per loan.
// Status and fine are kept as they are, even for a loan already marked Overdue.
func (s *Store) Renew(ctx context.Context, loanID string) (models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loans := slices.Clone(s.loans)
	i := loanIndex(loans, loanID)
	if i < 0 {
		return models.Loan{}, fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
	}
	if loans[i].IsRenewed {
		return models.Loan{}, fmt.Errorf("loan %s: %w", loanID, ErrAlreadyRenewed)
	}

	loans[i].DueDate = loans[i].DueDate.AddDate(0, 0, RenewalDays)
	loans[i].IsRenewed = true

	if err := s.commit(ctx, s.books, loans); err != nil {
		return models.Loan{}, err
	}

	s.logger.Info("Loan renewed",
		zap.String("loan_id", loanID),
		zap.Time("due_date", loans[i].DueDate),
	)
	return loans[i], nil
}

// UpdateLoan applies an administrative correction to a loan
func (s *Store) UpdateLoan(ctx context.Context, loanID string, upd models.LoanUpdate) (models.Loan, error) {
	if upd.Status != nil && !upd.Status.Valid() {
		return models.Loan{}, fmt.Errorf("status %q: %w", *upd.Status, ErrInvalidLoan)
	}
	if upd.FineAmount != nil && *upd.FineAmount < 0 {
		return models.Loan{}, fmt.Errorf("negative fine: %w", ErrInvalidLoan)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loans := slices.Clone(s.loans)
	i := loanIndex(loans, loanID)
	if i < 0 {
		return models.Loan{}, fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
	}

	l := &loans[i]
	if upd.StudentName != nil {
		l.StudentName = *upd.StudentName
	}
	if upd.StudentClass != nil {
		l.StudentClass = *upd.StudentClass
	}
	if upd.DueDate != nil {
		l.DueDate = *upd.DueDate
	}
	if upd.Status != nil {
		l.Status = *upd.Status
	}
	if upd.FineAmount != nil {
		l.FineAmount = *upd.FineAmount
	}

	if err := s.commit(ctx, s.books, loans); err != nil {
		return models.Loan{}, err
	}

	s.logger.Info("Loan updated", zap.String("loan_id", loanID))
	return loans[i], nil
}

// DeleteLoan removes a loan record, putting its copy back on the shelf if it still held one
func (s *Store) DeleteLoan(ctx context.Context, loanID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := loanIndex(s.loans, loanID)
	if i < 0 {
		return fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
	}
	loan := s.loans[i]

	books := s.books
	if loan.HoldsCopy() {
		books = slices.Clone(s.books)
		s.restock(books, loan.BookID)
	}
	loans := slices.Delete(slices.Clone(s.loans), i, i+1)

	if err := s.commit(ctx, books, loans); err != nil {
		return err
	}

	s.logger.Info("Loan deleted",
		zap.String("loan_id", loanID),
		zap.Bool("restocked", loan.HoldsCopy()),
	)
	return nil
}

// SweepOverdue marks every Active loan past its due date as Overdue and charges its fine.
// Loans already Overdue keep the fine they had. It returns the number of loans changed.
func (s *Store) SweepOverdue(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	loans := slices.Clone(s.loans)
	changed := 0
	for i := range loans {
		if loans[i].Status != models.LoanActive || !loans[i].DueDate.Before(now) {
			continue
		}
		loans[i].Status = models.LoanOverdue
		loans[i].FineAmount = FineFor(loans[i].DueDate, now)
		changed++
	}

	if changed == 0 {
		return 0, nil
	}
	if err := s.commit(ctx, s.books, loans); err != nil {
		return 0, err
	}

	s.logger.Info("Overdue sweep finished", zap.Int("marked_overdue", changed))
	return changed, nil
}

// CheckBorrowLimit fails with ErrBorrowLimitExceeded when the student already holds MaxActiveLoans copies.
// Students are matched by name, ignoring case.
func (s *Store) CheckBorrowLimit(studentName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	held := 0
	for _, l := range s.loans {
		if l.HoldsCopy() && strings.EqualFold(l.StudentName, studentName) {
			held++
		}
	}
	if held >= MaxActiveLoans {
		return fmt.Errorf("%s holds %d books: %w", studentName, held, ErrBorrowLimitExceeded)
	}
	return nil
}

// Loans returns a copy of every loan record
func (s *Store) Loans() []models.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.loans)
}

// Loan returns one loan by id
func (s *Store) Loan(id string) (models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := loanIndex(s.loans, id)
	if i < 0 {
		return models.Loan{}, fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	return s.loans[i], nil
}

// OutstandingLoans returns loans whose copy has not come back yet
func (s *Store) OutstandingLoans() []models.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Loan
	for _, l := range s.loans {
		if l.HoldsCopy() {
			out = append(out, l)
		}
	}
	return out
}

// History returns returned loans, most recent return first
func (s *Store) History() []models.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Loan
	for _, l := range s.loans {
		if l.ReturnDate != nil || l.Status == models.LoanReturned {
			out = append(out, l)
		}
	}
	slices.SortStableFunc(out, func(a, b models.Loan) int {
		return returnTime(b).Compare(returnTime(a))
	})
	return out
}

func returnTime(l models.Loan) time.Time {
	if l.ReturnDate == nil {
		return time.Time{}
	}
	return *l.ReturnDate
}
