package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schoollibrary/internal/models"
	"schoollibrary/internal/storage"
	"schoollibrary/internal/storage/stubs"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var start = time.Date(2024, 9, 5, 8, 0, 0, 0, time.UTC)

func sequentialLoanIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("L%03d", n)
	}
}

func newTestStore(t *testing.T, books []models.Book, loans []models.Loan, opts ...Option) (*Store, *stubs.MockDB, *fakeClock) {
	t.Helper()
	ctx := context.Background()

	db := stubs.NewMockDB()
	require.NoError(t, storage.Save(ctx, db, storage.Snapshot{Books: books, Loans: loans}))

	clock := &fakeClock{t: start}
	opts = append([]Option{WithClock(clock.now), WithLoanIDs(sequentialLoanIDs())}, opts...)
	s, err := New(ctx, db, zap.NewNop(), opts...)
	require.NoError(t, err)
	return s, db, clock
}

func bookFixture() []models.Book {
	return []models.Book{
		{ID: "VH0001", Title: "Số đỏ", Author: "Vũ Trọng Phụng", Category: models.CategoryLiterature, Total: 5, Available: 3},
		{ID: "KH0001", Title: "Bài tập Toán nâng cao 10", Author: "Nguyễn Văn A", Category: models.CategoryScience, Total: 1, Available: 0},
	}
}

func persisted(t *testing.T, db storage.Storage) storage.Snapshot {
	t.Helper()
	snap, err := storage.Load(context.Background(), db)
	require.NoError(t, err)
	return snap
}

func TestBorrow(t *testing.T) {
	ctx := context.Background()
	s, db, _ := newTestStore(t, bookFixture(), nil)

	loan, err := s.Borrow(ctx, "VH0001", "Nguyễn Văn Nam", "12A1")
	require.NoError(t, err)

	assert.Equal(t, "L001", loan.ID)
	assert.Equal(t, "Số đỏ", loan.BookTitle)
	assert.Equal(t, models.LoanActive, loan.Status)
	assert.Equal(t, start, loan.LoanDate)
	assert.Equal(t, start.AddDate(0, 0, 14), loan.DueDate)
	assert.Nil(t, loan.ReturnDate)
	assert.False(t, loan.IsRenewed)
	assert.Zero(t, loan.FineAmount)

	book, err := s.Book("VH0001")
	require.NoError(t, err)
	assert.Equal(t, 2, book.Available)

	snap := persisted(t, db)
	assert.Len(t, snap.Loans, 1)
	assert.Equal(t, 2, snap.Books[0].Available)
}

func TestBorrowRejections(t *testing.T) {
	testCases := []struct {
		name    string
		bookID  string
		wantErr error
	}{
		{name: "out of stock", bookID: "KH0001", wantErr: ErrOutOfStock},
		{name: "unknown book", bookID: "XX9999", wantErr: ErrNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, db, _ := newTestStore(t, bookFixture(), nil)
			writes := db.Writes

			_, err := s.Borrow(context.Background(), tc.bookID, "An", "10A2")
			assert.ErrorIs(t, err, tc.wantErr)

			assert.Empty(t, s.Loans())
			assert.Equal(t, bookFixture(), s.Books())
			assert.Equal(t, writes, db.Writes, "failed borrow must not write")
		})
	}
}

func TestBorrowRollsBackWhenSaveFails(t *testing.T) {
	s, db, _ := newTestStore(t, bookFixture(), nil)
	db.FailSet = errors.New("disk full")

	_, err := s.Borrow(context.Background(), "VH0001", "An", "10A2")
	require.Error(t, err)

	assert.Empty(t, s.Loans())
	book, err := s.Book("VH0001")
	require.NoError(t, err)
	assert.Equal(t, 3, book.Available)
}

func TestFailedSaveKeepsStorageConsistent(t *testing.T) {
	ctx := context.Background()
	loans := []models.Loan{
		{ID: "L1", BookID: "VH0001", BookTitle: "Số đỏ", StudentName: "Bình", StudentClass: "11A1",
			LoanDate: start, DueDate: start.AddDate(0, 0, LoanDays), Status: models.LoanActive},
	}

	testCases := []struct {
		name string
		op   func(s *Store) error
	}{
		{name: "borrow", op: func(s *Store) error {
			_, err := s.Borrow(ctx, "VH0001", "An", "10A2")
			return err
		}},
		{name: "return", op: func(s *Store) error {
			_, err := s.Return(ctx, "L1")
			return err
		}},
		{name: "delete loan", op: func(s *Store) error {
			return s.DeleteLoan(ctx, "L1")
		}},
		{name: "add book", op: func(s *Store) error {
			_, err := s.AddBook(ctx, models.NewBook{Title: "Vật lý vui", Category: models.CategoryScience, Total: 2})
			return err
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, db, _ := newTestStore(t, bookFixture(), loans)
			before := persisted(t, db)

			// Only the loans key is unwritable
			db.FailKeys = map[string]error{storage.KeyLoans: errors.New("disk full")}
			require.Error(t, tc.op(s))
			db.FailKeys = nil

			assert.Equal(t, before, persisted(t, db), "books must not be saved without their loans")

			reloaded, err := New(ctx, db, zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, s.Books(), reloaded.Books())
			assert.Equal(t, s.Loans(), reloaded.Loans())
		})
	}
}

func TestReturnFines(t *testing.T) {
	testCases := []struct {
		name       string
		elapsed    time.Duration
		wantStatus models.LoanStatus
		wantDays   int
		wantFine   int
	}{
		{name: "before due date", elapsed: 3 * day, wantStatus: models.LoanReturned},
		{name: "exactly on due date", elapsed: 14 * day, wantStatus: models.LoanReturned},
		{name: "one minute late", elapsed: 14*day + time.Minute, wantStatus: models.LoanOverdue, wantDays: 1, wantFine: 5000},
		{name: "one day late", elapsed: 15 * day, wantStatus: models.LoanOverdue, wantDays: 1, wantFine: 5000},
		{name: "three and a half days late", elapsed: 17*day + 12*time.Hour, wantStatus: models.LoanOverdue, wantDays: 4, wantFine: 20000},
		{name: "ten days late", elapsed: 24 * day, wantStatus: models.LoanOverdue, wantDays: 10, wantFine: 50000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s, _, clock := newTestStore(t, bookFixture(), nil)

			loan, err := s.Borrow(ctx, "VH0001", "An", "10A2")
			require.NoError(t, err)
			clock.advance(tc.elapsed)

			res, err := s.Return(ctx, loan.ID)
			require.NoError(t, err)

			assert.Equal(t, tc.wantStatus, res.Loan.Status)
			assert.Equal(t, tc.wantDays, res.DaysLate)
			assert.Equal(t, tc.wantFine, res.Fine)
			assert.Equal(t, tc.wantFine, res.Loan.FineAmount)
			require.NotNil(t, res.Loan.ReturnDate)
			assert.Equal(t, clock.t, *res.Loan.ReturnDate)
			assert.Equal(t, tc.wantFine > 0, res.Late())

			book, err := s.Book("VH0001")
			require.NoError(t, err)
			assert.Equal(t, 3, book.Available)
		})
	}
}

func TestReturnMessage(t *testing.T) {
	assert.Equal(t, "Book returned on time.", ReturnResult{}.Message())
	assert.Equal(t, "Book returned 10 day(s) late. Fine: 50.000đ", ReturnResult{DaysLate: 10, Fine: 50000}.Message())
}

func TestReturnTwice(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, bookFixture(), nil)

	loan, err := s.Borrow(ctx, "VH0001", "An", "10A2")
	require.NoError(t, err)

	// late return leaves the loan Overdue, a second return must still be refused
	clock.advance(20 * day)
	_, err = s.Return(ctx, loan.ID)
	require.NoError(t, err)

	_, err = s.Return(ctx, loan.ID)
	assert.ErrorIs(t, err, ErrAlreadyReturned)

	book, err := s.Book("VH0001")
	require.NoError(t, err)
	assert.Equal(t, 3, book.Available)
}

func TestReturnWithDeletedBook(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, bookFixture(), nil)

	loan, err := s.Borrow(ctx, "VH0001", "An", "10A2")
	require.NoError(t, err)
	require.NoError(t, s.DeleteBook(ctx, "VH0001"))

	res, err := s.Return(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanReturned, res.Loan.Status)
	assert.Len(t, s.Books(), 1)
}

func TestReturnUnknownLoan(t *testing.T) {
	s, _, _ := newTestStore(t, bookFixture(), nil)
	_, err := s.Return(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenew(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, bookFixture(), nil)

	loan, err := s.Borrow(ctx, "VH0001", "An", "10A2")
	require.NoError(t, err)

	renewed, err := s.Renew(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, renewed.IsRenewed)
	assert.Equal(t, loan.DueDate.AddDate(0, 0, 7), renewed.DueDate)

	_, err = s.Renew(ctx, loan.ID)
	assert.ErrorIs(t, err, ErrAlreadyRenewed)

	got, err := s.Loan(loan.ID)
	require.NoError(t, err)
	assert.Equal(t, renewed.DueDate, got.DueDate, "second renewal must not move the due date")
}

func TestRenewOverdueKeepsStatusAndFine(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, bookFixture(), nil)

	loan, err := s.Borrow(ctx, "VH0001", "An", "10A2")
	require.NoError(t, err)
	clock.advance(16 * day)
	_, err = s.SweepOverdue(ctx)
	require.NoError(t, err)

	renewed, err := s.Renew(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanOverdue, renewed.Status)
	assert.Equal(t, 10000, renewed.FineAmount)
	assert.Equal(t, start.AddDate(0, 0, 21), renewed.DueDate)
}

func TestDeleteLoan(t *testing.T) {
	ctx := context.Background()

	t.Run("outstanding loan restores a copy", func(t *testing.T) {
		s, _, _ := newTestStore(t, bookFixture(), nil)
		loan, err := s.Borrow(ctx, "VH0001", "An", "10A2")
		require.NoError(t, err)

		require.NoError(t, s.DeleteLoan(ctx, loan.ID))

		book, err := s.Book("VH0001")
		require.NoError(t, err)
		assert.Equal(t, 3, book.Available)
		assert.Empty(t, s.Loans())
	})

	t.Run("returned loan leaves availability alone", func(t *testing.T) {
		s, _, _ := newTestStore(t, bookFixture(), nil)
		loan, err := s.Borrow(ctx, "VH0001", "An", "10A2")
		require.NoError(t, err)
		_, err = s.Return(ctx, loan.ID)
		require.NoError(t, err)

		require.NoError(t, s.DeleteLoan(ctx, loan.ID))

		book, err := s.Book("VH0001")
		require.NoError(t, err)
		assert.Equal(t, 3, book.Available)
	})

	t.Run("late returned loan leaves availability alone", func(t *testing.T) {
		s, _, clock := newTestStore(t, bookFixture(), nil)
		loan, err := s.Borrow(ctx, "VH0001", "An", "10A2")
		require.NoError(t, err)
		clock.advance(30 * day)
		_, err = s.Return(ctx, loan.ID)
		require.NoError(t, err)

		require.NoError(t, s.DeleteLoan(ctx, loan.ID))

		book, err := s.Book("VH0001")
		require.NoError(t, err)
		assert.Equal(t, 3, book.Available)
	})

	t.Run("unknown loan", func(t *testing.T) {
		s, _, _ := newTestStore(t, bookFixture(), nil)
		assert.ErrorIs(t, s.DeleteLoan(ctx, "nope"), ErrNotFound)
	})
}

func TestRestockNeverExceedsTotal(t *testing.T) {
	ctx := context.Background()
	books := []models.Book{{ID: "VH0001", Title: "Số đỏ", Category: models.CategoryLiterature, Total: 2, Available: 2}}
	loans := []models.Loan{{ID: "L900", BookID: "VH0001", Status: models.LoanActive, DueDate: start.AddDate(0, 0, 3)}}
	s, _, _ := newTestStore(t, books, loans)

	_, err := s.Return(ctx, "L900")
	require.NoError(t, err)

	book, err := s.Book("VH0001")
	require.NoError(t, err)
	assert.Equal(t, 2, book.Available)
}

func TestSweepOverdue(t *testing.T) {
	ctx := context.Background()
	returnedAt := start.AddDate(0, 0, -20)
	loans := []models.Loan{
		{ID: "A", BookID: "VH0001", Status: models.LoanActive, DueDate: start.AddDate(0, 0, -10)},
		{ID: "B", BookID: "VH0001", Status: models.LoanActive, DueDate: start.AddDate(0, 0, 2)},
		{ID: "C", BookID: "VH0001", Status: models.LoanOverdue, DueDate: start.AddDate(0, 0, -30), FineAmount: 1234},
		{ID: "D", BookID: "VH0001", Status: models.LoanReturned, DueDate: start.AddDate(0, 0, -30), ReturnDate: &returnedAt},
	}
	s, db, _ := newTestStore(t, bookFixture(), loans)

	changed, err := s.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	got := s.Loans()
	assert.Equal(t, models.LoanOverdue, got[0].Status)
	assert.Equal(t, 50000, got[0].FineAmount)
	assert.Equal(t, models.LoanActive, got[1].Status)
	assert.Zero(t, got[1].FineAmount)
	assert.Equal(t, 1234, got[2].FineAmount, "already overdue loans keep their fine")
	assert.Equal(t, models.LoanReturned, got[3].Status)

	assert.Equal(t, got, persisted(t, db).Loans)

	writes := db.Writes
	changed, err = s.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
	assert.Equal(t, writes, db.Writes, "idle sweep must not write")
}

func TestCheckBorrowLimit(t *testing.T) {
	ctx := context.Background()
	books := []models.Book{{ID: "VH0001", Title: "Số đỏ", Category: models.CategoryLiterature, Total: 10, Available: 10}}
	s, _, clock := newTestStore(t, books, nil)

	var ids []string
	for i := 0; i < MaxActiveLoans; i++ {
		require.NoError(t, s.CheckBorrowLimit("Nguyễn Văn Nam"))
		loan, err := s.Borrow(ctx, "VH0001", "Nguyễn Văn Nam", "12A1")
		require.NoError(t, err)
		ids = append(ids, loan.ID)
	}

	assert.ErrorIs(t, s.CheckBorrowLimit("nguyễn văn nam"), ErrBorrowLimitExceeded)
	assert.NoError(t, s.CheckBorrowLimit("Trần Văn B"))

	// overdue loans still count
	clock.advance(20 * day)
	_, err := s.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, s.CheckBorrowLimit("Nguyễn Văn Nam"), ErrBorrowLimitExceeded)

	// a late return keeps status Overdue but frees the slot
	_, err = s.Return(ctx, ids[0])
	require.NoError(t, err)
	returned, err := s.Loan(ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.LoanOverdue, returned.Status)
	assert.NotNil(t, returned.ReturnDate)
	assert.NoError(t, s.CheckBorrowLimit("Nguyễn Văn Nam"))
}

func TestUpdateLoan(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, bookFixture(), nil)
	loan, err := s.Borrow(ctx, "VH0001", "An", "10A2")
	require.NoError(t, err)

	name := "Bình"
	fine := 7000
	updated, err := s.UpdateLoan(ctx, loan.ID, models.LoanUpdate{StudentName: &name, FineAmount: &fine})
	require.NoError(t, err)
	assert.Equal(t, "Bình", updated.StudentName)
	assert.Equal(t, "10A2", updated.StudentClass)
	assert.Equal(t, 7000, updated.FineAmount)

	bad := models.LoanStatus("Lost")
	_, err = s.UpdateLoan(ctx, loan.ID, models.LoanUpdate{Status: &bad})
	assert.ErrorIs(t, err, ErrInvalidLoan)

	_, err = s.UpdateLoan(ctx, "nope", models.LoanUpdate{StudentName: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOutstandingAndHistory(t *testing.T) {
	ctx := context.Background()
	books := []models.Book{{ID: "VH0001", Title: "Số đỏ", Category: models.CategoryLiterature, Total: 10, Available: 10}}
	s, _, clock := newTestStore(t, books, nil)

	first, err := s.Borrow(ctx, "VH0001", "An", "10A2")
	require.NoError(t, err)
	second, err := s.Borrow(ctx, "VH0001", "Bình", "10A2")
	require.NoError(t, err)
	third, err := s.Borrow(ctx, "VH0001", "Chi", "10A2")
	require.NoError(t, err)

	clock.advance(day)
	_, err = s.Return(ctx, first.ID)
	require.NoError(t, err)
	clock.advance(30 * day)
	_, err = s.Return(ctx, second.ID)
	require.NoError(t, err)

	outstanding := s.OutstandingLoans()
	require.Len(t, outstanding, 1)
	assert.Equal(t, third.ID, outstanding[0].ID)

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)
}

func TestAvailabilityConservation(t *testing.T) {
	ctx := context.Background()
	books := []models.Book{{ID: "VH0001", Title: "Số đỏ", Category: models.CategoryLiterature, Total: 4, Available: 4}}
	s, _, clock := newTestStore(t, books, nil)

	check := func() {
		t.Helper()
		book, err := s.Book("VH0001")
		require.NoError(t, err)
		held := 0
		for _, l := range s.Loans() {
			if l.HoldsCopy() {
				held++
			}
		}
		assert.Equal(t, book.Total, book.Available+held)
		assert.GreaterOrEqual(t, book.Available, 0)
		assert.LessOrEqual(t, book.Available, book.Total)
	}

	var ids []string
	for i := 0; i < 4; i++ {
		loan, err := s.Borrow(ctx, "VH0001", fmt.Sprintf("Student %d", i), "11B")
		require.NoError(t, err)
		ids = append(ids, loan.ID)
		check()
	}
	_, err := s.Borrow(ctx, "VH0001", "Student 5", "11B")
	assert.ErrorIs(t, err, ErrOutOfStock)
	check()

	clock.advance(20 * day)
	_, err = s.SweepOverdue(ctx)
	require.NoError(t, err)
	check()

	_, err = s.Return(ctx, ids[0])
	require.NoError(t, err)
	check()
	_, err = s.Renew(ctx, ids[1])
	require.NoError(t, err)
	check()
	require.NoError(t, s.DeleteLoan(ctx, ids[2]))
	check()
	require.NoError(t, s.DeleteLoan(ctx, ids[0]))
	check()
}

func TestOnTimeScenario(t *testing.T) {
	ctx := context.Background()
	books := []models.Book{{ID: "VH0002", Title: "Nhà giả kim", Category: models.CategoryLiterature, Total: 1, Available: 1}}
	s, _, clock := newTestStore(t, books, nil)

	loan, err := s.Borrow(ctx, "VH0002", "An", "10A2")
	require.NoError(t, err)
	book, _ := s.Book("VH0002")
	assert.Zero(t, book.Available)

	clock.advance(5 * day)
	res, err := s.Return(ctx, loan.ID)
	require.NoError(t, err)

	assert.Equal(t, models.LoanReturned, res.Loan.Status)
	assert.Zero(t, res.Fine)
	book, _ = s.Book("VH0002")
	assert.Equal(t, 1, book.Available)
}

func TestOverdueSweepScenario(t *testing.T) {
	ctx := context.Background()
	books := []models.Book{{ID: "VH0002", Title: "Nhà giả kim", Category: models.CategoryLiterature, Total: 1, Available: 1}}
	s, _, clock := newTestStore(t, books, nil)

	loan, err := s.Borrow(ctx, "VH0002", "An", "10A2")
	require.NoError(t, err)

	clock.advance(24 * day)
	_, err = s.SweepOverdue(ctx)
	require.NoError(t, err)

	got, err := s.Loan(loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanOverdue, got.Status)
	assert.Equal(t, 50000, got.FineAmount)
	assert.Nil(t, got.ReturnDate)
}
