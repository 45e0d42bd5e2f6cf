package vending

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vendmx/vending-engine/internal/auth"
	"github.com/vendmx/vending-engine/internal/coins"
	"github.com/vendmx/vending-engine/internal/model"
	"github.com/vendmx/vending-engine/internal/store"
)

// Service exposes the engine over HTTP. Authenticated routes expect the
// auth middleware to have resolved the acting account; the resolved
// identity is always passed to the engine explicitly.
type Service struct {
	engine *Engine
}

// NewService creates the HTTP service for an engine.
func NewService(engine *Engine) *Service {
	return &Service{engine: engine}
}

// --- Request types ---

// CreateAccountRequest is the JSON body for POST /user.
type CreateAccountRequest struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

// UpdatePasswordRequest is the JSON body for PUT /user.
type UpdatePasswordRequest struct {
	Password string `json:"password"`
}

// DepositRequest is the JSON body for POST /deposit.
type DepositRequest struct {
	Amount int64 `json:"amount"`
}

// BuyRequest is the JSON body for POST /buy.
type BuyRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// CreateProductRequest is the JSON body for POST /products.
type CreateProductRequest struct {
	Name            string `json:"name"`
	Cost            int64  `json:"cost"`
	AmountAvailable int64  `json:"amount_available"`
}

// UpdateProductRequest is the JSON body for PUT /products. Nil fields are
// left unchanged.
type UpdateProductRequest struct {
	Name            string `json:"name"`
	Cost            *int64 `json:"cost,omitempty"`
	AmountAvailable *int64 `json:"amount_available,omitempty"`
}

// DeleteProductRequest is the JSON body for DELETE /products.
type DeleteProductRequest struct {
	Name string `json:"name"`
}

// --- Account handlers ---

// CreateAccount handles POST /api/v1/user (unauthenticated).
func (s *Service) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, "username and password are required", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, "could not hash password", http.StatusInternalServerError)
		return
	}

	account, err := s.engine.CreateAccount(r.Context(), req.Username, hash, req.Role)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// GetAccount handles GET /api/v1/user.
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.Identity(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	account, err := s.engine.GetAccount(r.Context(), identity.Username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// UpdatePassword handles PUT /api/v1/user.
func (s *Service) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.Identity(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req UpdatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		writeError(w, "password is required", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, "could not hash password", http.StatusInternalServerError)
		return
	}
	if err := s.engine.UpdatePassword(r.Context(), identity.Username, hash); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// DeleteAccount handles DELETE /api/v1/user.
func (s *Service) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.Identity(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := s.engine.DeleteAccount(r.Context(), identity.Username); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

// Deposit handles POST /api/v1/deposit.
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.Identity(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	account, err := s.engine.Deposit(r.Context(), identity.Username, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// ResetDeposit handles POST /api/v1/deposit/reset.
func (s *Service) ResetDeposit(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.Identity(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	account, err := s.engine.ResetDeposit(r.Context(), identity.Username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// Buy handles POST /api/v1/buy.
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.Identity(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.engine.Purchase(r.Context(), identity.Username, req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Product handlers ---

// GetProduct handles GET /api/v1/products/{productName} (unauthenticated).
func (s *Service) GetProduct(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "productName")

	product, err := s.engine.GetProductByName(r.Context(), name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// CreateProduct handles POST /api/v1/products.
func (s *Service) CreateProduct(w http.ResponseWriter, r *http.Request) {
	seller, ok := s.requireSeller(w, r)
	if !ok {
		return
	}

	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	product, err := s.engine.CreateProduct(r.Context(), seller.ID, req.Name, req.Cost, req.AmountAvailable)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

// UpdateProduct handles PUT /api/v1/products. Cost and amount can be
// updated independently or together.
func (s *Service) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	seller, ok := s.requireSeller(w, r)
	if !ok {
		return
	}

	var req UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Cost == nil && req.AmountAvailable == nil {
		writeError(w, "nothing to update", http.StatusBadRequest)
		return
	}

	var product *model.Product
	var err error
	if req.Cost != nil {
		product, err = s.engine.UpdateProductCost(r.Context(), seller.ID, req.Name, *req.Cost)
		if err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if req.AmountAvailable != nil {
		product, err = s.engine.UpdateProductAmount(r.Context(), seller.ID, req.Name, *req.AmountAvailable)
		if err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, product)
}

// DeleteProduct handles DELETE /api/v1/products.
func (s *Service) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	seller, ok := s.requireSeller(w, r)
	if !ok {
		return
	}

	var req DeleteProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, "product name is required", http.StatusBadRequest)
		return
	}

	if err := s.engine.DeleteProduct(r.Context(), seller.ID, req.Name); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

// requireSeller resolves the acting identity and rejects non-sellers.
func (s *Service) requireSeller(w http.ResponseWriter, r *http.Request) (*model.Account, bool) {
	identity, ok := auth.Identity(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	if identity.Role != model.RoleSeller {
		writeError(w, "only sellers can manage products", http.StatusForbidden)
		return nil, false
	}
	return identity, true
}

// --- Response helpers ---

// writeDomainError maps engine/store error kinds to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, err.Error(), httpStatus(err))
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAccountExists),
		errors.Is(err, store.ErrProductExists),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrInsufficientDeposit):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotABuyer),
		errors.Is(err, store.ErrNotTheOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrZeroDeposit),
		errors.Is(err, ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, coins.ErrInvalidDenomination),
		errors.Is(err, store.ErrInvalidProduct),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrReconciliation):
		// Fatal inconsistency, never a client problem.
		return http.StatusInternalServerError
	case errors.Is(err, ErrPurchaseFailed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
