package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lkastelic/knjiznica/internal/model"
)

// CreateLoan runs the lending transaction: validate the request, check and
// decrement the book's copies, record the loan. Both writes commit in one
// SQLite transaction, so a failure while recording the loan rolls the
// decrement back instead of leaking copies.
func CreateLoan(ctx context.Context, db *sql.DB, bookID int64, quantity int, dueDate time.Time, createdBy *int64) (*model.Loan, error) {
	if bookID <= 0 {
		return nil, fmt.Errorf("book id %d: %w", bookID, ErrMalformedRef)
	}
	if quantity < 1 {
		return nil, validationf("quantity must be a positive number")
	}
	if !dueDate.After(time.Now()) {
		return nil, validationf("due date must be in the future")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Load first so a missing book reports not-found rather than
	// insufficient stock.
	if _, err := getBook(ctx, tx, bookID); err != nil {
		return nil, err
	}

	if _, err := decrementCopies(ctx, tx, bookID, quantity); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO loans (book_id, quantity, due_date, created_by) VALUES (?, ?, ?, ?)`,
		bookID, quantity, dueDate.UTC(), createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("recording loan: %w", err)
	}

	loanID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting loan id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing loan: %w", err)
	}

	return GetLoan(ctx, db, loanID)
}

// GetLoan returns a loan by ID. The joined book fields are empty if the
// book has since been deleted.
func GetLoan(ctx context.Context, db *sql.DB, id int64) (*model.Loan, error) {
	l := &model.Loan{}
	var title, isbn sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT l.id, l.book_id, l.quantity, l.due_date, l.created_at, l.updated_at, l.created_by,
		        b.title, b.isbn
		 FROM loans l
		 LEFT JOIN books b ON b.id = l.book_id
		 WHERE l.id = ?`, id,
	).Scan(&l.ID, &l.BookID, &l.Quantity, &l.DueDate, &l.CreatedAt, &l.UpdatedAt, &l.CreatedBy,
		&title, &isbn)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("loan: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting loan: %w", err)
	}
	l.BookTitle = title.String
	l.BookISBN = isbn.String
	return l, nil
}

// ListLoans returns loans, newest first, optionally filtered by book.
// Loans whose book has been deleted are still listed, with the joined
// fields left empty.
func ListLoans(ctx context.Context, db *sql.DB, bookID int64) ([]model.Loan, error) {
	query := `SELECT l.id, l.book_id, l.quantity, l.due_date, l.created_at, l.updated_at, l.created_by,
	                 b.title, b.isbn
	          FROM loans l
	          LEFT JOIN books b ON b.id = l.book_id`
	var args []any

	if bookID > 0 {
		query += ` WHERE l.book_id = ?`
		args = append(args, bookID)
	}

	query += ` ORDER BY l.created_at DESC, l.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing loans: %w", err)
	}
	defer rows.Close()

	var loans []model.Loan
	for rows.Next() {
		var l model.Loan
		var title, isbn sql.NullString
		if err := rows.Scan(&l.ID, &l.BookID, &l.Quantity, &l.DueDate, &l.CreatedAt, &l.UpdatedAt,
			&l.CreatedBy, &title, &isbn); err != nil {
			return nil, fmt.Errorf("scanning loan: %w", err)
		}
		l.BookTitle = title.String
		l.BookISBN = isbn.String
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// SummarizeLoans returns the total quantity borrowed per book, joined with
// the book's title and ISBN. The inner join drops loans whose book has
// since been deleted from the catalog.
func SummarizeLoans(ctx context.Context, db *sql.DB) ([]model.LoanSummary, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT l.book_id, b.title, b.isbn, SUM(l.quantity) AS total_quantity
		 FROM loans l
		 JOIN books b ON b.id = l.book_id
		 GROUP BY l.book_id
		 ORDER BY b.title`,
	)
	if err != nil {
		return nil, fmt.Errorf("summarizing loans: %w", err)
	}
	defer rows.Close()

	var summaries []model.LoanSummary
	for rows.Next() {
		var s model.LoanSummary
		if err := rows.Scan(&s.BookID, &s.Title, &s.ISBN, &s.TotalQuantity); err != nil {
			return nil, fmt.Errorf("scanning loan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
