package model

import "time"

// Book represents a cataloged work with a finite number of copies.
type Book struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Genre       string    `json:"genre"`
	ISBN        string    `json:"isbn"`
	Description string    `json:"description,omitempty"`
	Copies      int       `json:"copies"`
	Available   bool      `json:"available"`
	CoverMime   string    `json:"cover_mime,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Book genres.
const (
	GenreFiction    = "FICTION"
	GenreNonFiction = "NON_FICTION"
	GenreScience    = "SCIENCE"
	GenreHistory    = "HISTORY"
	GenreBiography  = "BIOGRAPHY"
	GenreFantasy    = "FANTASY"
)

// Genres lists all recognized genre values.
var Genres = []string{
	GenreFiction,
	GenreNonFiction,
	GenreScience,
	GenreHistory,
	GenreBiography,
	GenreFantasy,
}

// ValidGenre reports whether g is a recognized genre.
func ValidGenre(g string) bool {
	for _, v := range Genres {
		if v == g {
			return true
		}
	}
	return false
}

// DeriveAvailability computes the availability flag after copies changes.
// The rule is a ratchet, not a plain equality: zero copies forces the flag
// off, positive copies flips a stored false back on, and otherwise the
// stored value is kept. Callers must only invoke it on paths that actually
// change copies, so a manual available=false override survives updates
// that leave copies alone.
func DeriveAvailability(prevAvailable bool, newCopies int) bool {
	if newCopies == 0 {
		return false
	}
	if newCopies > 0 && !prevAvailable {
		return true
	}
	return prevAvailable
}
