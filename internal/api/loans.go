package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lkastelic/knjiznica/internal/model"
	"github.com/lkastelic/knjiznica/internal/store"
)

// LoansHandler handles lending endpoints.
type LoansHandler struct {
	DB *sql.DB
}

type createLoanRequest struct {
	BookID   int64     `json:"book_id"`
	Quantity int       `json:"quantity"`
	DueDate  time.Time `json:"due_date"`
}

// Create handles POST /api/loans.
func (h *LoansHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	var userID *int64
	if claims != nil {
		userID = &claims.UserID
	}

	loan, err := store.CreateLoan(r.Context(), h.DB, req.BookID, req.Quantity, req.DueDate, userID)
	if err != nil {
		storeError(w, err)
		return
	}

	slog.Info("loan created", "user", claims.Username,
		"book", loan.BookTitle, "quantity", loan.Quantity, "due", loan.DueDate)
	jsonResponse(w, http.StatusCreated, loan)
}

// List handles GET /api/loans. Accepts an optional book_id filter.
func (h *LoansHandler) List(w http.ResponseWriter, r *http.Request) {
	var bookID int64

	if v := r.URL.Query().Get("book_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid book_id")
			return
		}
		bookID = id
	}

	loans, err := store.ListLoans(r.Context(), h.DB, bookID)
	if err != nil {
		storeError(w, err)
		return
	}
	if loans == nil {
		loans = []model.Loan{}
	}
	jsonResponse(w, http.StatusOK, loans)
}

// Summary handles GET /api/loans/summary.
func (h *LoansHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summaries, err := store.SummarizeLoans(r.Context(), h.DB)
	if err != nil {
		storeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []model.LoanSummary{}
	}
	jsonResponse(w, http.StatusOK, summaries)
}
