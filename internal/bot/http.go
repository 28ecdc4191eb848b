package bot

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"schoollibrary/internal/assistant"
	"schoollibrary/internal/catalog"
	"schoollibrary/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// initDataMaxAge is how long a Mini App login stays valid
const initDataMaxAge = 24 * time.Hour

// HTTPServer serves the JSON API used by the librarian's Mini App
type HTTPServer struct {
	bot         *Bot
	webhookMode bool // If false (polling mode), skip authentication for easier local dev
	validate    *validator.Validate
}

// NewHTTPServer creates a new HTTP server for the Mini App
func NewHTTPServer(bot *Bot, webhookMode bool) *HTTPServer {
	return &HTTPServer{
		bot:         bot,
		webhookMode: webhookMode,
		validate:    validator.New(),
	}
}

// RegisterRoutes registers API routes on the provided mux
func (hs *HTTPServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/books", hs.authMiddleware(hs.handleListBooks))
	mux.HandleFunc("POST /api/books", hs.authMiddleware(hs.handleCreateBook))
	mux.HandleFunc("PATCH /api/books/{id}", hs.authMiddleware(hs.handleUpdateBook))
	mux.HandleFunc("DELETE /api/books/{id}", hs.authMiddleware(hs.handleDeleteBook))

	mux.HandleFunc("GET /api/loans", hs.authMiddleware(hs.handleListLoans))
	mux.HandleFunc("POST /api/loans", hs.authMiddleware(hs.handleBorrow))
	mux.HandleFunc("PATCH /api/loans/{id}", hs.authMiddleware(hs.handleUpdateLoan))
	mux.HandleFunc("DELETE /api/loans/{id}", hs.authMiddleware(hs.handleDeleteLoan))
	mux.HandleFunc("POST /api/loans/{id}/return", hs.authMiddleware(hs.handleReturn))
	mux.HandleFunc("POST /api/loans/{id}/renew", hs.authMiddleware(hs.handleRenew))

	mux.HandleFunc("GET /api/stats", hs.authMiddleware(hs.handleStats))
	mux.HandleFunc("POST /api/recommendations", hs.authMiddleware(hs.handleRecommend))
}

// validateTelegramInitData validates the Telegram Mini App initData
func (hs *HTTPServer) validateTelegramInitData(initData string) (int64, error) {
	if initData == "" {
		return 0, fmt.Errorf("missing initData")
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, fmt.Errorf("invalid initData format: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return 0, fmt.Errorf("missing hash in initData")
	}
	values.Del("hash")

	// Data-check-string is the sorted key=value pairs joined by newlines
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var dataCheckString strings.Builder
	for i, k := range keys {
		if i > 0 {
			dataCheckString.WriteByte('\n')
		}
		dataCheckString.WriteString(k)
		dataCheckString.WriteByte('=')
		dataCheckString.WriteString(values.Get(k))
	}

	if !hmac.Equal([]byte(signInitData(hs.bot.token, dataCheckString.String())), []byte(hash)) {
		return 0, fmt.Errorf("invalid hash")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("missing auth_date")
	}
	if time.Since(time.Unix(authDate, 0)) > initDataMaxAge {
		return 0, fmt.Errorf("initData is too old")
	}

	userStr := values.Get("user")
	if userStr == "" {
		return 0, fmt.Errorf("missing user data")
	}

	var userData struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(userStr), &userData); err != nil {
		return 0, fmt.Errorf("invalid user data: %w", err)
	}

	if !hs.bot.allowedUsers[userData.ID] {
		return 0, fmt.Errorf("user not allowed")
	}
	return userData.ID, nil
}

// signInitData computes the hash Telegram puts in initData
func signInitData(token, dataCheckString string) string {
	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(token))

	h := hmac.New(sha256.New, secretKey.Sum(nil))
	h.Write([]byte(dataCheckString))
	return hex.EncodeToString(h.Sum(nil))
}

// authMiddleware validates Telegram Mini App authentication.
// In polling mode authentication is skipped for easier local development.
func (hs *HTTPServer) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !hs.webhookMode {
			hs.bot.logger.Debug("Skipping authentication (polling mode)",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			next(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "tma ") {
			hs.bot.logger.Warn("Missing or invalid authorization header")
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		userID, err := hs.validateTelegramInitData(strings.TrimPrefix(authHeader, "tma "))
		if err != nil {
			hs.bot.logger.Warn("Failed to validate initData",
				zap.Error(err),
				zap.String("remote_addr", r.RemoteAddr),
			)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		hs.bot.logger.Debug("Authenticated request",
			zap.Int64("user_id", userID),
			zap.String("path", r.URL.Path),
		)
		next(w, r)
	}
}

type createBookRequest struct {
	Title    string `json:"title" validate:"required"`
	Author   string `json:"author"`
	Category string `json:"category" validate:"required"`
	Total    int    `json:"total" validate:"gte=0"`
}

type updateBookRequest struct {
	Title     *string `json:"title" validate:"omitempty,min=1"`
	Author    *string `json:"author"`
	Category  *string `json:"category"`
	Total     *int    `json:"total" validate:"omitempty,gte=0"`
	Available *int    `json:"available" validate:"omitempty,gte=0"`
}

type borrowRequest struct {
	BookID       string `json:"bookId" validate:"required"`
	StudentName  string `json:"studentName" validate:"required"`
	StudentClass string `json:"studentClass" validate:"required"`
}

type updateLoanRequest struct {
	StudentName  *string    `json:"studentName" validate:"omitempty,min=1"`
	StudentClass *string    `json:"studentClass"`
	DueDate      *time.Time `json:"dueDate"`
	Status       *string    `json:"status" validate:"omitempty,oneof=Active Returned Overdue"`
	FineAmount   *int       `json:"fineAmount" validate:"omitempty,gte=0"`
}

type recommendRequest struct {
	Query string `json:"query" validate:"required"`
}

type returnResponse struct {
	Loan     models.Loan `json:"loan"`
	DaysLate int         `json:"daysLate"`
	Fine     int         `json:"fine"`
	Message  string      `json:"message"`
}

// handleListBooks returns the catalog, optionally filtered by ?q= and ?available=true
func (hs *HTTPServer) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if r.URL.Query().Get("available") == "true" {
		writeJSON(w, http.StatusOK, hs.bot.store.AvailableBooks(q))
		return
	}
	writeJSON(w, http.StatusOK, hs.bot.store.SearchBooks(q))
}

func (hs *HTTPServer) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if !hs.decode(w, r, &req) {
		return
	}

	category, ok := models.ParseCategory(req.Category)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "unknown category")
		return
	}

	book, err := hs.bot.store.AddBook(r.Context(), models.NewBook{
		Title:    req.Title,
		Author:   req.Author,
		Category: category,
		Total:    req.Total,
	})
	if err != nil {
		hs.fail(w, "Failed to add book", err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (hs *HTTPServer) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	var req updateBookRequest
	if !hs.decode(w, r, &req) {
		return
	}

	upd := models.BookUpdate{
		Title:     req.Title,
		Author:    req.Author,
		Total:     req.Total,
		Available: req.Available,
	}
	if req.Category != nil {
		category, ok := models.ParseCategory(*req.Category)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "unknown category")
			return
		}
		upd.Category = &category
	}

	book, err := hs.bot.store.UpdateBook(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		hs.fail(w, "Failed to update book", err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (hs *HTTPServer) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := hs.bot.store.DeleteBook(r.Context(), r.PathValue("id")); err != nil {
		hs.fail(w, "Failed to delete book", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListLoans returns loans; ?view=outstanding or ?view=history narrow the list
func (hs *HTTPServer) handleListLoans(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("view") {
	case "outstanding":
		writeJSON(w, http.StatusOK, hs.bot.store.OutstandingLoans())
	case "history":
		writeJSON(w, http.StatusOK, hs.bot.store.History())
	case "":
		writeJSON(w, http.StatusOK, hs.bot.store.Loans())
	default:
		writeError(w, http.StatusBadRequest, "unknown view")
	}
}

func (hs *HTTPServer) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if !hs.decode(w, r, &req) {
		return
	}

	if err := hs.bot.store.CheckBorrowLimit(req.StudentName); err != nil {
		hs.fail(w, "Borrow rejected", err)
		return
	}

	loan, err := hs.bot.store.Borrow(r.Context(), req.BookID, req.StudentName, req.StudentClass)
	if err != nil {
		hs.fail(w, "Failed to borrow book", err)
		return
	}

	hs.bot.logger.Info("Loan created via Mini App",
		zap.String("loan_id", loan.ID),
		zap.String("book_id", loan.BookID),
		zap.String("student", loan.StudentName),
	)
	writeJSON(w, http.StatusCreated, loan)
}

func (hs *HTTPServer) handleUpdateLoan(w http.ResponseWriter, r *http.Request) {
	var req updateLoanRequest
	if !hs.decode(w, r, &req) {
		return
	}

	upd := models.LoanUpdate{
		StudentName:  req.StudentName,
		StudentClass: req.StudentClass,
		DueDate:      req.DueDate,
		FineAmount:   req.FineAmount,
	}
	if req.Status != nil {
		status := models.LoanStatus(*req.Status)
		upd.Status = &status
	}

	loan, err := hs.bot.store.UpdateLoan(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		hs.fail(w, "Failed to update loan", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (hs *HTTPServer) handleDeleteLoan(w http.ResponseWriter, r *http.Request) {
	if err := hs.bot.store.DeleteLoan(r.Context(), r.PathValue("id")); err != nil {
		hs.fail(w, "Failed to delete loan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (hs *HTTPServer) handleReturn(w http.ResponseWriter, r *http.Request) {
	res, err := hs.bot.store.Return(r.Context(), r.PathValue("id"))
	if err != nil {
		hs.fail(w, "Failed to return loan", err)
		return
	}
	writeJSON(w, http.StatusOK, returnResponse{
		Loan:     res.Loan,
		DaysLate: res.DaysLate,
		Fine:     res.Fine,
		Message:  res.Message(),
	})
}

func (hs *HTTPServer) handleRenew(w http.ResponseWriter, r *http.Request) {
	loan, err := hs.bot.store.Renew(r.Context(), r.PathValue("id"))
	if err != nil {
		hs.fail(w, "Failed to renew loan", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (hs *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, hs.bot.store.Stats())
}

func (hs *HTTPServer) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if !hs.decode(w, r, &req) {
		return
	}

	books := hs.bot.store.Books()
	titles := make([]string, 0, len(books))
	for _, b := range books {
		titles = append(titles, b.Title)
	}

	res, err := hs.bot.assistant.Recommend(r.Context(), req.Query, titles)
	if err != nil {
		hs.fail(w, "Recommendation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decode reads and validates a JSON body, answering the request itself on failure
func (hs *HTTPServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		hs.bot.logger.Warn("Failed to decode request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := hs.validate.Struct(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

// fail maps a domain error to its HTTP status
func (hs *HTTPServer) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		hs.bot.logger.Error(msg, zap.Error(err))
	} else {
		hs.bot.logger.Debug(msg, zap.Error(err))
	}
	writeError(w, status, userMessage(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrOutOfStock),
		errors.Is(err, catalog.ErrAlreadyRenewed),
		errors.Is(err, catalog.ErrAlreadyReturned),
		errors.Is(err, catalog.ErrBorrowLimitExceeded),
		errors.Is(err, catalog.ErrIDSpaceExhausted):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrInvalidBook), errors.Is(err, catalog.ErrInvalidLoan):
		return http.StatusUnprocessableEntity
	}

	switch assistant.KindOf(err) {
	case assistant.KindMissingAPIKey:
		return http.StatusServiceUnavailable
	case assistant.KindInvalidAPIKey:
		return http.StatusBadGateway
	case assistant.KindQuotaExceeded:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
