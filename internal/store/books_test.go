package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/lkastelic/knjiznica/internal/db"
	"github.com/lkastelic/knjiznica/internal/model"
)

func createTestBook(t *testing.T, database *sql.DB, title, isbn string, copies int) *model.Book {
	t.Helper()
	b, err := CreateBook(context.Background(), database, model.Book{
		Title:  title,
		Author: "Test Author",
		Genre:  model.GenreFiction,
		ISBN:   isbn,
		Copies: copies,
	})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	return b
}

func TestCreateAndGetBook(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	created, err := CreateBook(ctx, database, model.Book{
		Title:       "The Hobbit",
		Author:      "J.R.R. Tolkien",
		Genre:       model.GenreFantasy,
		ISBN:        "978-0547928227",
		Description: "There and back again.",
		Copies:      3,
	})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected assigned id")
	}
	if !created.Available {
		t.Error("expected book with copies to be available")
	}

	got, err := GetBook(ctx, database, created.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if got.Title != "The Hobbit" || got.ISBN != "978-0547928227" || got.Copies != 3 {
		t.Errorf("unexpected book: %+v", got)
	}
	if got.Description != "There and back again." {
		t.Errorf("expected description, got %q", got.Description)
	}
}

func TestCreateBookZeroCopiesUnavailable(t *testing.T) {
	database := db.NewTestDB(t)

	b := createTestBook(t, database, "Out of Stock", "isbn-zero", 0)
	if b.Available {
		t.Error("expected book with zero copies to be unavailable")
	}
}

func TestCreateBookValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	cases := []model.Book{
		{Author: "A", Genre: model.GenreFiction, ISBN: "i1", Copies: 1},                           // missing title
		{Title: "T", Genre: model.GenreFiction, ISBN: "i2", Copies: 1},                            // missing author
		{Title: "T", Author: "A", Genre: "COOKING", ISBN: "i3", Copies: 1},                        // bad genre
		{Title: "T", Author: "A", Genre: model.GenreFiction, Copies: 1},                           // missing isbn
		{Title: "T", Author: "A", Genre: model.GenreFiction, ISBN: "i4", Copies: -1},              // negative copies
		{Title: "   ", Author: "A", Genre: model.GenreFiction, ISBN: "i5", Copies: 1},             // blank title
	}

	for i, c := range cases {
		_, err := CreateBook(ctx, database, c)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestCreateBookDuplicateISBN(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first := createTestBook(t, database, "First", "978-1", 2)

	_, err := CreateBook(ctx, database, model.Book{
		Title:  "Second",
		Author: "Someone Else",
		Genre:  model.GenreHistory,
		ISBN:   "978-1",
		Copies: 1,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// The first book must remain retrievable unchanged.
	got, err := GetBook(ctx, database, first.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if got.Title != "First" || got.Copies != 2 {
		t.Errorf("first book changed: %+v", got)
	}
}

func TestGetBookNotFound(t *testing.T) {
	database := db.NewTestDB(t)

	_, err := GetBook(context.Background(), database, 12345)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListBooksDefaultOrder(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	createTestBook(t, database, "Alpha", "i-a", 1)
	createTestBook(t, database, "Beta", "i-b", 1)
	createTestBook(t, database, "Gamma", "i-c", 1)

	books, err := ListBooks(ctx, database, ListOptions{Limit: DefaultListLimit})
	if err != nil {
		t.Fatalf("ListBooks: %v", err)
	}
	if len(books) != 3 {
		t.Fatalf("expected 3 books, got %d", len(books))
	}
	// Default order is newest first.
	if books[0].Title != "Gamma" || books[2].Title != "Alpha" {
		t.Errorf("unexpected order: %s, %s, %s", books[0].Title, books[1].Title, books[2].Title)
	}
}

func TestListBooksSortByTitle(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	createTestBook(t, database, "Charlie", "i-1", 1)
	createTestBook(t, database, "Alice", "i-2", 1)
	createTestBook(t, database, "Bob", "i-3", 1)

	books, err := ListBooks(ctx, database, ListOptions{SortBy: "title", Limit: DefaultListLimit})
	if err != nil {
		t.Fatalf("ListBooks: %v", err)
	}
	if books[0].Title != "Alice" || books[1].Title != "Bob" || books[2].Title != "Charlie" {
		t.Errorf("expected ascending title order, got %s, %s, %s", books[0].Title, books[1].Title, books[2].Title)
	}

	books, err = ListBooks(ctx, database, ListOptions{SortBy: "title", SortDir: "desc", Limit: DefaultListLimit})
	if err != nil {
		t.Fatalf("ListBooks desc: %v", err)
	}
	if books[0].Title != "Charlie" {
		t.Errorf("expected descending title order, got %s first", books[0].Title)
	}
}

func TestListBooksGenreFilter(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	createTestBook(t, database, "Novel", "i-f", 1)
	if _, err := CreateBook(ctx, database, model.Book{
		Title: "Dragons", Author: "A", Genre: model.GenreFantasy, ISBN: "i-fa", Copies: 1,
	}); err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	books, err := ListBooks(ctx, database, ListOptions{Genre: "FANTASY", Limit: DefaultListLimit})
	if err != nil {
		t.Fatalf("ListBooks: %v", err)
	}
	if len(books) != 1 || books[0].Title != "Dragons" {
		t.Errorf("expected only the fantasy book, got %+v", books)
	}

	// Lowercase filter values are uppercased before matching.
	books, _ = ListBooks(ctx, database, ListOptions{Genre: "fantasy", Limit: DefaultListLimit})
	if len(books) != 1 {
		t.Errorf("expected lowercase filter to match, got %d books", len(books))
	}

	// An unrecognized filter value means no filter.
	books, _ = ListBooks(ctx, database, ListOptions{Genre: "COOKING", Limit: DefaultListLimit})
	if len(books) != 2 {
		t.Errorf("expected unrecognized filter to return all books, got %d", len(books))
	}
}

func TestListBooksLimitFloor(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	createTestBook(t, database, "One", "i-1", 1)
	createTestBook(t, database, "Two", "i-2", 1)

	// A limit below 1 is coerced up to 1, never rejected.
	zero, err := ListBooks(ctx, database, ListOptions{Limit: 0})
	if err != nil {
		t.Fatalf("ListBooks limit 0: %v", err)
	}
	one, err := ListBooks(ctx, database, ListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("ListBooks limit 1: %v", err)
	}
	if len(zero) != 1 || len(one) != 1 {
		t.Errorf("expected both limits to return 1 book, got %d and %d", len(zero), len(one))
	}
	if zero[0].ID != one[0].ID {
		t.Error("expected limit 0 to behave identically to limit 1")
	}

	negative, _ := ListBooks(ctx, database, ListOptions{Limit: -5})
	if len(negative) != 1 {
		t.Errorf("expected negative limit to be floored, got %d books", len(negative))
	}
}

func TestUpdateBookPartial(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	b := createTestBook(t, database, "Original", "i-u", 3)

	title := "Renamed"
	got, err := UpdateBook(ctx, database, b.ID, BookUpdate{Title: &title})
	if err != nil {
		t.Fatalf("UpdateBook: %v", err)
	}
	if got.Title != "Renamed" {
		t.Errorf("expected renamed title, got %q", got.Title)
	}
	if got.Author != "Test Author" || got.Copies != 3 || !got.Available {
		t.Errorf("untouched fields changed: %+v", got)
	}
}

func TestUpdateBookCopiesRederivesAvailability(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	b := createTestBook(t, database, "Stocked", "i-s", 3)

	zero := 0
	got, err := UpdateBook(ctx, database, b.ID, BookUpdate{Copies: &zero})
	if err != nil {
		t.Fatalf("UpdateBook: %v", err)
	}
	if got.Copies != 0 || got.Available {
		t.Errorf("expected zero copies and unavailable, got %+v", got)
	}

	five := 5
	got, err = UpdateBook(ctx, database, b.ID, BookUpdate{Copies: &five})
	if err != nil {
		t.Fatalf("UpdateBook: %v", err)
	}
	if !got.Available {
		t.Error("expected restock to flip availability back on")
	}
}

func TestUpdateBookManualAvailabilityOverride(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	b := createTestBook(t, database, "Reference Copy", "i-r", 3)

	// A librarian can mark a stocked book unavailable by hand.
	unavailable := false
	got, err := UpdateBook(ctx, database, b.ID, BookUpdate{Available: &unavailable})
	if err != nil {
		t.Fatalf("UpdateBook: %v", err)
	}
	if got.Available {
		t.Fatal("expected manual override to stick")
	}

	// Updates that leave copies alone keep the override.
	title := "Reference Copy (archive)"
	got, err = UpdateBook(ctx, database, b.ID, BookUpdate{Title: &title})
	if err != nil {
		t.Fatalf("UpdateBook: %v", err)
	}
	if got.Available {
		t.Error("expected override to survive a title-only update")
	}

	// Touching copies runs the ratchet and flips the flag back on.
	two := 2
	got, err = UpdateBook(ctx, database, b.ID, BookUpdate{Copies: &two})
	if err != nil {
		t.Fatalf("UpdateBook: %v", err)
	}
	if !got.Available {
		t.Error("expected copies change to re-derive availability")
	}
}

func TestUpdateBookValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	b := createTestBook(t, database, "Valid", "i-v", 1)

	negative := -2
	_, err := UpdateBook(ctx, database, b.ID, BookUpdate{Copies: &negative})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}

	badGenre := "POETRY"
	_, err = UpdateBook(ctx, database, b.ID, BookUpdate{Genre: &badGenre})
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error for bad genre, got %v", err)
	}
}

func TestUpdateBookNotFound(t *testing.T) {
	database := db.NewTestDB(t)

	title := "Ghost"
	_, err := UpdateBook(context.Background(), database, 999, BookUpdate{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateBookDuplicateISBN(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	createTestBook(t, database, "First", "i-one", 1)
	b := createTestBook(t, database, "Second", "i-two", 1)

	taken := "i-one"
	_, err := UpdateBook(ctx, database, b.ID, BookUpdate{ISBN: &taken})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDeleteBook(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	b := createTestBook(t, database, "Doomed", "i-d", 1)

	if err := DeleteBook(ctx, database, b.ID); err != nil {
		t.Fatalf("DeleteBook: %v", err)
	}

	if _, err := GetBook(ctx, database, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected deleted book to be gone, got %v", err)
	}

	if err := DeleteBook(ctx, database, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected second delete to report not found, got %v", err)
	}
}

func TestDecrementCopies(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	b := createTestBook(t, database, "Popular", "i-p", 5)

	got, err := DecrementCopies(ctx, database, b.ID, 3)
	if err != nil {
		t.Fatalf("DecrementCopies: %v", err)
	}
	if got.Copies != 2 || !got.Available {
		t.Errorf("expected 2 copies and available, got %+v", got)
	}

	got, err = DecrementCopies(ctx, database, b.ID, 2)
	if err != nil {
		t.Fatalf("DecrementCopies to zero: %v", err)
	}
	if got.Copies != 0 || got.Available {
		t.Errorf("expected 0 copies and unavailable, got %+v", got)
	}
}

func TestDecrementCopiesInsufficient(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	b := createTestBook(t, database, "Scarce", "i-sc", 2)

	_, err := DecrementCopies(ctx, database, b.ID, 3)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// Copies must be unchanged after a failed decrement.
	got, _ := GetBook(ctx, database, b.ID)
	if got.Copies != 2 {
		t.Errorf("expected copies unchanged at 2, got %d", got.Copies)
	}
}

func TestDecrementCopiesNotFound(t *testing.T) {
	database := db.NewTestDB(t)

	_, err := DecrementCopies(context.Background(), database, 999, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecrementCopiesConcurrent(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	b := createTestBook(t, database, "Dune", "978-0441172719", 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = DecrementCopies(ctx, database, b.ID, 3)
		}(i)
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			if !errors.Is(err, ErrInsufficientStock) {
				t.Fatalf("unexpected error: %v", err)
			}
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected exactly one request to fail, got %d failures", failed)
	}

	got, _ := GetBook(ctx, database, b.ID)
	if got.Copies != 2 {
		t.Errorf("expected 2 copies left, got %d", got.Copies)
	}
}

func TestBookCover(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	b := createTestBook(t, database, "Illustrated", "i-il", 1)

	data, mime, err := GetBookCover(ctx, database, b.ID)
	if err != nil {
		t.Fatalf("GetBookCover: %v", err)
	}
	if data != nil || mime != "" {
		t.Error("expected no cover initially")
	}

	if err := SetBookCover(ctx, database, b.ID, []byte{0xff, 0xd8, 0xff}, "image/jpeg"); err != nil {
		t.Fatalf("SetBookCover: %v", err)
	}

	data, mime, err = GetBookCover(ctx, database, b.ID)
	if err != nil {
		t.Fatalf("GetBookCover: %v", err)
	}
	if len(data) != 3 || mime != "image/jpeg" {
		t.Errorf("unexpected cover: %d bytes, mime %q", len(data), mime)
	}

	if err := SetBookCover(ctx, database, 999, data, mime); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing book, got %v", err)
	}
}
