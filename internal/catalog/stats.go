package catalog

import "schoollibrary/internal/models"

// Stats summarizes the catalog for the dashboard.
// Loans are counted by status: a late return keeps counting as overdue.
func (s *Store) Stats() models.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := models.Stats{TotalBooks: len(s.books)}

	copies := make(map[models.Category]int, len(models.Categories))
	for _, b := range s.books {
		st.TotalCopies += b.Total
		copies[b.Category] += b.Total
	}
	for _, c := range models.Categories {
		st.ByCategory = append(st.ByCategory, models.CategoryStat{Category: c, Copies: copies[c]})
	}

	for _, l := range s.loans {
		switch l.Status {
		case models.LoanActive:
			st.ActiveLoans++
		case models.LoanOverdue:
			st.ActiveLoans++
			st.OverdueLoans++
		}
	}
	st.OnTimeLoans = st.ActiveLoans - st.OverdueLoans
	return st
}
