package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lkastelic/knjiznica/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so the book helpers can
// run standalone or inside a lending transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const bookColumns = `id, title, author, genre, isbn, description, copies, available, cover_mime, created_at, updated_at`

// CreateBook validates and creates a new book. The availability flag is
// derived from the copy count, never taken from the caller as-is.
func CreateBook(ctx context.Context, db *sql.DB, b model.Book) (*model.Book, error) {
	if err := validateBook(&b); err != nil {
		return nil, err
	}

	available := model.DeriveAvailability(b.Available, b.Copies)

	result, err := db.ExecContext(ctx,
		`INSERT INTO books (title, author, genre, isbn, description, copies, available)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.Title, b.Author, b.Genre, b.ISBN, b.Description, b.Copies, available,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("isbn %q: %w", b.ISBN, ErrConflict)
		}
		return nil, fmt.Errorf("creating book: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting book id: %w", err)
	}

	return GetBook(ctx, db, id)
}

// GetBook returns a book by ID.
func GetBook(ctx context.Context, db *sql.DB, id int64) (*model.Book, error) {
	return getBook(ctx, db, id)
}

func getBook(ctx context.Context, q querier, id int64) (*model.Book, error) {
	return scanBook(q.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id,
	))
}

func scanBook(row *sql.Row) (*model.Book, error) {
	b := &model.Book{}
	var description, coverMime sql.NullString
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.ISBN, &description,
		&b.Copies, &b.Available, &coverMime, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("book: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting book: %w", err)
	}
	b.Description = description.String
	b.CoverMime = coverMime.String
	return b, nil
}

// DefaultListLimit is used when the caller does not request a limit.
const DefaultListLimit = 10

// ListOptions configures ListBooks. An unrecognized genre means no filter,
// an unrecognized sort field falls back to the default ordering (creation
// time, newest first), and a limit below 1 is coerced up to 1, never
// rejected.
type ListOptions struct {
	Genre   string
	SortBy  string
	SortDir string // "asc" or "desc"; "-1" is accepted as "desc"
	Limit   int
}

// sortColumns whitelists the fields a caller may order by.
var sortColumns = map[string]string{
	"title":      "title",
	"author":     "author",
	"genre":      "genre",
	"isbn":       "isbn",
	"copies":     "copies",
	"available":  "available",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// ListBooks returns books matching the given options.
func ListBooks(ctx context.Context, db *sql.DB, opts ListOptions) ([]model.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books`
	var args []any

	if g := strings.ToUpper(opts.Genre); model.ValidGenre(g) {
		query += ` WHERE genre = ?`
		args = append(args, g)
	}

	column, ok := sortColumns[opts.SortBy]
	dir := "ASC"
	if ok {
		if opts.SortDir == "desc" || opts.SortDir == "-1" {
			dir = "DESC"
		}
	} else {
		column, dir = "created_at", "DESC"
	}

	limit := opts.Limit
	if limit < 1 {
		limit = 1
	}

	// Secondary order on id keeps results stable when timestamps collide.
	query += ` ORDER BY ` + column + ` ` + dir + `, id ` + dir + ` LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()

	var books []model.Book
	for rows.Next() {
		var b model.Book
		var description, coverMime sql.NullString
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.ISBN, &description,
			&b.Copies, &b.Available, &coverMime, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning book: %w", err)
		}
		b.Description = description.String
		b.CoverMime = coverMime.String
		books = append(books, b)
	}
	return books, rows.Err()
}

// BookUpdate is a partial update of a book; nil fields are left unchanged.
type BookUpdate struct {
	Title       *string
	Author      *string
	Genre       *string
	ISBN        *string
	Description *string
	Copies      *int
	Available   *bool
}

// UpdateBook applies a partial update, re-validates the resulting record,
// and re-derives availability when copies changed. An explicit Available
// value is kept as long as the update leaves copies alone.
func UpdateBook(ctx context.Context, db *sql.DB, id int64, upd BookUpdate) (*model.Book, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	b, err := getBook(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		b.Title = *upd.Title
	}
	if upd.Author != nil {
		b.Author = *upd.Author
	}
	if upd.Genre != nil {
		b.Genre = *upd.Genre
	}
	if upd.ISBN != nil {
		b.ISBN = *upd.ISBN
	}
	if upd.Description != nil {
		b.Description = *upd.Description
	}
	if upd.Available != nil {
		b.Available = *upd.Available
	}
	if upd.Copies != nil {
		b.Copies = *upd.Copies
	}

	if err := validateBook(b); err != nil {
		return nil, err
	}

	if upd.Copies != nil {
		b.Available = model.DeriveAvailability(b.Available, b.Copies)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE books
		 SET title = ?, author = ?, genre = ?, isbn = ?, description = ?,
		     copies = ?, available = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		b.Title, b.Author, b.Genre, b.ISBN, b.Description, b.Copies, b.Available, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("isbn %q: %w", b.ISBN, ErrConflict)
		}
		return nil, fmt.Errorf("updating book: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing book update: %w", err)
	}

	return GetBook(ctx, db, id)
}

// DeleteBook removes a book. Loans referencing it are left untouched; the
// summary query excludes them via its join.
func DeleteBook(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("book: %w", ErrNotFound)
	}
	return nil
}

// DecrementCopies atomically takes quantity copies off a book's count,
// re-deriving the availability flag in the same statement. The copies >= ?
// guard makes the check-and-decrement one conditional write, so concurrent
// requests against the same book can never drive the count negative.
func DecrementCopies(ctx context.Context, db *sql.DB, id int64, quantity int) (*model.Book, error) {
	return decrementCopies(ctx, db, id, quantity)
}

func decrementCopies(ctx context.Context, q querier, id int64, quantity int) (*model.Book, error) {
	if quantity < 1 {
		return nil, validationf("quantity must be a positive number")
	}

	result, err := q.ExecContext(ctx,
		`UPDATE books
		 SET copies = copies - ?,
		     available = CASE WHEN copies - ? > 0 THEN 1 ELSE 0 END,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND copies >= ?`,
		quantity, quantity, id, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("decrementing copies: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("decrementing copies: %w", err)
	}
	if rows == 0 {
		// Distinguish a missing book from insufficient stock.
		b, err := getBook(ctx, q, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%q has %d copies, need %d: %w", b.Title, b.Copies, quantity, ErrInsufficientStock)
	}

	return getBook(ctx, q, id)
}

// SetBookCover stores a book's cover image.
func SetBookCover(ctx context.Context, db *sql.DB, id int64, cover []byte, mime string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE books SET cover = ?, cover_mime = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		cover, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting book cover: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting book cover: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("book: %w", ErrNotFound)
	}
	return nil
}

// GetBookCover returns a book's cover image data and MIME type. A book
// without a cover returns nil data and no error.
func GetBookCover(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var cover []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT cover, cover_mime FROM books WHERE id = ?`, id,
	).Scan(&cover, &mime)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("book: %w", ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting book cover: %w", err)
	}
	return cover, mime.String, nil
}

// validateBook checks the fields of a book, trimming text fields first.
func validateBook(b *model.Book) error {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	b.ISBN = strings.TrimSpace(b.ISBN)
	b.Description = strings.TrimSpace(b.Description)

	if b.Title == "" {
		return validationf("title is required")
	}
	if b.Author == "" {
		return validationf("author is required")
	}
	if !model.ValidGenre(b.Genre) {
		return validationf("genre must be one of: %s", strings.Join(model.Genres, ", "))
	}
	if b.ISBN == "" {
		return validationf("isbn is required")
	}
	if b.Copies < 0 {
		return validationf("copies must be a non-negative number")
	}
	return nil
}
