package model

import "time"

// Loan is an immutable record of copies borrowed against one book.
// BookID is a weak reference: the book may have been deleted since.
type Loan struct {
	ID        int64     `json:"id"`
	BookID    int64     `json:"book_id"`
	Quantity  int       `json:"quantity"`
	DueDate   time.Time `json:"due_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy *int64    `json:"created_by,omitempty"`

	// Joined fields (not always populated).
	BookTitle string `json:"book_title,omitempty"`
	BookISBN  string `json:"book_isbn,omitempty"`
}

// LoanSummary is the total quantity borrowed per book, joined with the
// book's metadata. Books deleted from the catalog are excluded.
type LoanSummary struct {
	BookID        int64  `json:"book_id"`
	Title         string `json:"title"`
	ISBN          string `json:"isbn"`
	TotalQuantity int    `json:"total_quantity"`
}
