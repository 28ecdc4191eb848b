package bot

import (
	"errors"
	"fmt"
	"strings"

	"schoollibrary/internal/assistant"
	"schoollibrary/internal/catalog"
	"schoollibrary/internal/models"
)

// Dates are shown the way Vietnamese schools write them
const dateLayout = "02/01/2006"

func formatBook(b models.Book) string {
	return fmt.Sprintf("%s · %s - %s [%s] %d/%d", b.ID, b.Title, b.Author, b.Category.Label(), b.Available, b.Total)
}

func statusLabel(s models.LoanStatus) string {
	switch s {
	case models.LoanActive:
		return "🟢 Active"
	case models.LoanOverdue:
		return "🔴 Overdue"
	case models.LoanReturned:
		return "✅ Returned"
	}
	return string(s)
}

func formatLoan(l models.Loan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s · %s (%s)\n", l.ID, l.BookTitle, l.BookID)
	fmt.Fprintf(&sb, "👤 %s, class %s\n", l.StudentName, l.StudentClass)
	fmt.Fprintf(&sb, "📅 %s → due %s\n", l.LoanDate.Format(dateLayout), l.DueDate.Format(dateLayout))
	sb.WriteString(statusLabel(l.Status))
	if l.IsRenewed {
		sb.WriteString(" · renewed")
	}
	if l.FineAmount > 0 {
		fmt.Fprintf(&sb, " · fine %s", catalog.FormatMoney(l.FineAmount))
	}
	return sb.String()
}

func formatHistoryEntry(l models.Loan) string {
	line := fmt.Sprintf("%s - %s (%s)", l.BookTitle, l.StudentName, l.StudentClass)
	if l.ReturnDate != nil {
		line += ", returned " + l.ReturnDate.Format(dateLayout)
	}
	if l.FineAmount > 0 {
		line += ", fine " + catalog.FormatMoney(l.FineAmount)
	}
	return line
}

func formatStats(s models.Stats) string {
	var sb strings.Builder
	sb.WriteString("📊 Library statistics\n\n")
	fmt.Fprintf(&sb, "Titles: %d\n", s.TotalBooks)
	fmt.Fprintf(&sb, "Copies: %d\n", s.TotalCopies)
	fmt.Fprintf(&sb, "On loan: %d (on time %d, overdue %d)\n", s.ActiveLoans, s.OnTimeLoans, s.OverdueLoans)
	sb.WriteString("\nCopies by category:\n")
	for _, c := range s.ByCategory {
		fmt.Fprintf(&sb, "  %s: %d\n", c.Category.Label(), c.Copies)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatRecommendations(query string, res assistant.RecommendResult) string {
	if len(res.Recommendations) == 0 {
		return fmt.Sprintf("🤷 No suggestions for %q.", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "💡 Suggestions for %q (%s):\n", query, res.Model)
	for i, r := range res.Recommendations {
		fmt.Fprintf(&sb, "\n%d. %s - %s", i+1, r.Title, r.Author)
		if r.Category != "" {
			fmt.Fprintf(&sb, " [%s]", r.Category)
		}
		if r.Reason != "" {
			fmt.Fprintf(&sb, "\n   %s", r.Reason)
		}
	}
	return sb.String()
}

func formatCandidates(res assistant.ExtractResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Found %d book(s) (%s):\n", len(res.Books), res.Model)
	for i, c := range res.Books {
		nb := c.NewBook()
		fmt.Fprintf(&sb, "\n%d. %s - %s [%s] x%d", i+1, nb.Title, nb.Author, nb.Category.Label(), nb.Total)
	}
	return sb.String()
}

// userMessage turns an error into text fit for the librarian
func userMessage(err error) string {
	switch {
	case errors.Is(err, catalog.ErrInvalidCredentials):
		return "Wrong username or password."
	case errors.Is(err, catalog.ErrOutOfStock):
		return "This book is out of stock."
	case errors.Is(err, catalog.ErrAlreadyRenewed):
		return "This loan has already been renewed once."
	case errors.Is(err, catalog.ErrAlreadyReturned):
		return "This loan has already been returned."
	case errors.Is(err, catalog.ErrBorrowLimitExceeded):
		return fmt.Sprintf("The student already holds %d books.", catalog.MaxActiveLoans)
	case errors.Is(err, catalog.ErrNotFound):
		return "Not found: " + err.Error()
	case errors.Is(err, assistant.ErrUnknownModel):
		return "Unknown AI model."
	}

	switch assistant.KindOf(err) {
	case assistant.KindMissingAPIKey:
		return "No AI API key is configured. Set one with /apikey <key>."
	case assistant.KindInvalidAPIKey:
		return "The AI API key is invalid. Set a new one with /apikey <key>."
	case assistant.KindQuotaExceeded:
		return "The AI quota is exhausted. Try again later or switch with /model."
	}
	return err.Error()
}
