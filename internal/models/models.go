package models

import (
	"strings"
	"time"
)

// Category is a book category in the school catalog
type Category string

const (
	CategoryLiterature       Category = "Literature"
	CategoryScience          Category = "Science"
	CategoryHistoryGeography Category = "History-Geography"
	CategoryEnglish          Category = "English"
	CategoryLifeSkills       Category = "Life-Skills"
	CategoryReference        Category = "Reference"
	CategoryGeneralKnowledge Category = "General-Knowledge"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryLiterature,
	CategoryScience,
	CategoryHistoryGeography,
	CategoryEnglish,
	CategoryLifeSkills,
	CategoryReference,
	CategoryGeneralKnowledge,
}

var categoryPrefixes = map[Category]string{
	CategoryLiterature:       "VH",
	CategoryScience:          "KH",
	CategoryHistoryGeography: "LS",
	CategoryEnglish:          "TA",
	CategoryLifeSkills:       "KT",
	CategoryReference:        "TK",
	CategoryGeneralKnowledge: "KN",
}

// Vietnamese labels as printed on the library shelves and returned by the AI import
var categoryLabels = map[Category]string{
	CategoryLiterature:       "Văn học",
	CategoryScience:          "Khoa học",
	CategoryHistoryGeography: "Lịch sử - Địa lý",
	CategoryEnglish:          "Tiếng Anh",
	CategoryLifeSkills:       "Kỹ năng sống",
	CategoryReference:        "Tham khảo",
	CategoryGeneralKnowledge: "Kiến thức chung",
}

// Prefix returns the two-letter book ID prefix of the category
func (c Category) Prefix() string {
	return categoryPrefixes[c]
}

// Label returns the shelf label of the category
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	_, ok := categoryPrefixes[c]
	return ok
}

// ParseCategory resolves a category from its name, its two-letter prefix or its shelf label.
// Matching is case-insensitive.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) ||
			strings.EqualFold(s, c.Prefix()) ||
			strings.EqualFold(s, c.Label()) {
			return c, true
		}
	}
	return "", false
}

// LoanStatus is the lifecycle state of a loan
type LoanStatus string

const (
	LoanActive   LoanStatus = "Active"
	LoanReturned LoanStatus = "Returned"
	LoanOverdue  LoanStatus = "Overdue"
)

// Valid reports whether s is a known loan status
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanActive, LoanReturned, LoanOverdue:
		return true
	}
	return false
}

// Book represents a title in the library catalog
type Book struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Category  Category `json:"category"`
	Total     int      `json:"total"`
	Available int      `json:"available"`
}

// Loan represents a single copy lent to a student
type Loan struct {
	ID           string     `json:"id"`
	BookID       string     `json:"bookId"`
	BookTitle    string     `json:"bookTitle"`
	StudentName  string     `json:"studentName"`
	StudentClass string     `json:"studentClass"`
	LoanDate     time.Time  `json:"loanDate"`
	DueDate      time.Time  `json:"dueDate"`
	ReturnDate   *time.Time `json:"returnDate,omitempty"`
	Status       LoanStatus `json:"status"`
	IsRenewed    bool       `json:"isRenewed"`
	FineAmount   int        `json:"fineAmount"`
}

// HoldsCopy reports whether the loan still keeps a copy off the shelf
func (l Loan) HoldsCopy() bool {
	return (l.Status == LoanActive || l.Status == LoanOverdue) && l.ReturnDate == nil
}

// NewBook holds the fields supplied when a book is added to the catalog
type NewBook struct {
	Title    string   `json:"title" validate:"required"`
	Author   string   `json:"author"`
	Category Category `json:"category" validate:"required"`
	Total    int      `json:"total" validate:"gte=0"`
}

// BookUpdate is a partial update of a book; nil fields are left unchanged
type BookUpdate struct {
	Title     *string   `json:"title,omitempty"`
	Author    *string   `json:"author,omitempty"`
	Category  *Category `json:"category,omitempty"`
	Total     *int      `json:"total,omitempty"`
	Available *int      `json:"available,omitempty"`
}

// LoanUpdate is a partial update of a loan; nil fields are left unchanged
type LoanUpdate struct {
	StudentName  *string     `json:"studentName,omitempty"`
	StudentClass *string     `json:"studentClass,omitempty"`
	DueDate      *time.Time  `json:"dueDate,omitempty"`
	Status       *LoanStatus `json:"status,omitempty"`
	FineAmount   *int        `json:"fineAmount,omitempty"`
}

// CategoryStat is the number of copies owned in one category
type CategoryStat struct {
	Category Category `json:"category"`
	Copies   int      `json:"copies"`
}

// Stats is the dashboard summary of the catalog
type Stats struct {
	TotalBooks   int            `json:"totalBooks"`
	TotalCopies  int            `json:"totalCopies"`
	ActiveLoans  int            `json:"activeLoans"`
	OverdueLoans int            `json:"overdueLoans"`
	OnTimeLoans  int            `json:"onTimeLoans"`
	ByCategory   []CategoryStat `json:"byCategory"`
}
