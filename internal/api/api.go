// Package api exposes the transfer engine over HTTP. Authentication is
// an upstream concern: the gateway injects the caller's identity as the
// X-User-ID header before requests reach this router.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fantasyxi/transfer-engine/internal/model"
	"github.com/fantasyxi/transfer-engine/internal/transfer"
)

// Handler adapts the transfer engine to HTTP.
type Handler struct {
	svc *transfer.Service
}

// NewHandler creates the HTTP adapter.
func NewHandler(svc *transfer.Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the transfer-market endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/transfers/market", h.Market)
	r.Post("/transfers/listings", h.CreateListing)
	r.Delete("/transfers/listings/{listingID}", h.RemoveListing)
	r.Get("/transfers/my-listings", h.MyListings)
	r.Post("/transfers/buy", h.Buy)
	r.Get("/team", h.Team)
}

// --- Request types ---

// CreateListingRequest is the JSON body for POST /transfers/listings.
type CreateListingRequest struct {
	PlayerID string `json:"playerId"`
	Price    int64  `json:"price"`
}

// BuyRequest is the JSON body for POST /transfers/buy.
type BuyRequest struct {
	TransferListingID string `json:"transferListingId"`
}

// --- Handlers ---

// Market handles GET /transfers/market.
func (h *Handler) Market(w http.ResponseWriter, r *http.Request) {
	filters, ok := parseFilters(w, r)
	if !ok {
		return
	}

	page, err := h.svc.MarketListings(r.Context(), filters)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// CreateListing handles POST /transfers/listings.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", "", http.StatusBadRequest)
		return
	}

	listing, err := h.svc.CreateListing(r.Context(), userID, req.PlayerID, req.Price)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

// RemoveListing handles DELETE /transfers/listings/{listingID}.
func (h *Handler) RemoveListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.svc.RetractListing(r.Context(), userID, chi.URLParam(r, "listingID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MyListings handles GET /transfers/my-listings.
func (h *Handler) MyListings(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	listings, err := h.svc.UserListings(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

// Buy handles POST /transfers/buy.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", "", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Buy(r.Context(), userID, req.TransferListingID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Team handles GET /team.
func (h *Handler) Team(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	team, err := h.svc.Team(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

// --- Helpers ---

func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, "missing user identity", "", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func parseFilters(w http.ResponseWriter, r *http.Request) (model.MarketFilters, bool) {
	q := r.URL.Query()
	filters := model.MarketFilters{
		Position: model.Position(q.Get("position")),
		Search:   q.Get("search"),
	}

	for name, dst := range map[string]**int64{"minPrice": &filters.MinPrice, "maxPrice": &filters.MaxPrice} {
		if raw := q.Get(name); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, name+" must be an integer", "", http.StatusBadRequest)
				return filters, false
			}
			*dst = &v
		}
	}

	for name, dst := range map[string]*int{"page": &filters.Page, "limit": &filters.Limit} {
		if raw := q.Get(name); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, name+" must be an integer", "", http.StatusBadRequest)
				return filters, false
			}
			*dst = v
		}
	}

	return filters, true
}

// errorCode distinguishes the precondition failures that share a 409.
func errorCode(err error) string {
	switch {
	case errors.Is(err, transfer.ErrSelfPurchase):
		return "SELF_PURCHASE"
	case errors.Is(err, transfer.ErrDuplicateListing):
		return "DUPLICATE_LISTING"
	case errors.Is(err, transfer.ErrInsufficientBudget):
		return "INSUFFICIENT_BUDGET"
	case errors.Is(err, transfer.ErrConflict):
		return "CONFLICT_RETRY"
	}
	return ""
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch transfer.Classify(err) {
	case transfer.KindNotFound:
		status = http.StatusNotFound
	case transfer.KindInvalidInput:
		status = http.StatusBadRequest
	case transfer.KindPreconditionFailed, transfer.KindConflict:
		status = http.StatusConflict
	case transfer.KindUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeError(w, err.Error(), errorCode(err), status)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message, code string, status int) {
	body := map[string]string{"error": message}
	if code != "" {
		body["code"] = code
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
