package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonzyyyy/CS50-Finance/internal/config"
	"github.com/jonzyyyy/CS50-Finance/internal/models"
	"github.com/jonzyyyy/CS50-Finance/internal/portfolio"
	"github.com/jonzyyyy/CS50-Finance/internal/quotes"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log     *zap.Logger
	engine  *portfolio.Service
	authCfg *config.Auth
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, engine *portfolio.Service, authCfg *config.Auth) *APIHandler {
	return &APIHandler{log: log, engine: engine, authCfg: authCfg}
}

// Routes mounts the full API router.
func (h *APIHandler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.RegisterHandler)
		r.Post("/login", h.LoginHandler)

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth(h.authCfg.JWTSecret))
			r.Get("/quote/{symbol}", h.QuoteHandler)
			r.Post("/buy", h.BuyHandler)
			r.Post("/sell", h.SellHandler)
			r.Post("/deposit", h.DepositHandler)
			r.Post("/password", h.PasswordHandler)
			r.Get("/history", h.HistoryHandler)
			r.Get("/portfolio", h.PortfolioHandler)
		})
	})

	return r
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps engine error kinds to HTTP status classes. Unrecognized
// errors are logged and reported as a 500 without leaking detail.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, portfolio.ErrValidation), errors.Is(err, portfolio.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, portfolio.ErrAuth):
		status = http.StatusUnauthorized
	case errors.Is(err, quotes.ErrUnknownSymbol):
		status = http.StatusBadRequest
	case errors.Is(err, portfolio.ErrInsufficientFunds), errors.Is(err, portfolio.ErrInsufficientShares):
		status = http.StatusUnprocessableEntity
	default:
		h.log.Error("Operation failed", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

type userResponse struct {
	ID       uint            `json:"id"`
	Username string          `json:"username"`
	Cash     decimal.Decimal `json:"cash"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Cash: u.Cash}
}

// RegisterHandler creates a new account.
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username     string `json:"username"`
		Password     string `json:"password"`
		Confirmation string `json:"confirmation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	user, err := h.engine.Register(r.Context(), req.Username, req.Password, req.Confirmation)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// LoginHandler authenticates a user and issues a session token.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	user, err := h.engine.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	token, err := issueToken(h.authCfg, user.ID)
	if err != nil {
		h.log.Error("Failed to sign token", zap.Error(err))
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

// QuoteHandler returns the current quote for a symbol.
func (h *APIHandler) QuoteHandler(w http.ResponseWriter, r *http.Request) {
	quote, err := h.engine.Quote(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		if errors.Is(err, quotes.ErrUnknownSymbol) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

type tradeRequest struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

// BuyHandler purchases shares for the authenticated user.
func (h *APIHandler) BuyHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	txn, err := h.engine.Buy(r.Context(), userID, req.Symbol, req.Shares)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, txn)
}

// SellHandler sells shares for the authenticated user.
func (h *APIHandler) SellHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	txn, err := h.engine.Sell(r.Context(), userID, req.Symbol, req.Shares)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, txn)
}

// DepositHandler adds cash to the authenticated user's balance. The amount
// arrives as a string and is parsed here; the engine only sees decimals.
func (h *APIHandler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	var req struct {
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be a number"})
		return
	}

	user, err := h.engine.Deposit(r.Context(), userID, amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toUserResponse(user))
}

// PasswordHandler changes the authenticated user's password.
func (h *APIHandler) PasswordHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	var req struct {
		OldPassword  string `json:"old_password"`
		NewPassword  string `json:"new_password"`
		Confirmation string `json:"confirmation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	if err := h.engine.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword, req.Confirmation); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

// HistoryHandler returns the authenticated user's transactions oldest first.
func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	history := make([]models.Transaction, 0)
	for txn, err := range h.engine.History(r.Context(), userID) {
		if err != nil {
			h.writeError(w, err)
			return
		}
		history = append(history, txn)
	}
	h.writeJSON(w, http.StatusOK, history)
}

// PortfolioHandler returns the valuation summary for the authenticated user.
func (h *APIHandler) PortfolioHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	summary, err := h.engine.Summary(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}
