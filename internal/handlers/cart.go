package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/foodeli/api/internal/domain"
	"github.com/foodeli/api/internal/platform/auth"
	"github.com/foodeli/api/internal/platform/httpx"
	"github.com/foodeli/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers backed by the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getCart)
	r.Put("/", h.replaceCart)
	r.Post("/", h.addItem)
	r.Delete("/{productRef}", h.removeItem)
}

type cartItemPayload struct {
	ProductRef string `json:"productRef"`
	Quantity   int    `json:"quantity"`
}

type cartResponse struct {
	Items []cartItemPayload `json:"items"`
}

func buildCartResponse(items []domain.CartItem) cartResponse {
	payload := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, cartItemPayload{ProductRef: item.ProductRef, Quantity: item.Quantity})
	}
	return cartResponse{Items: payload}
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	items, err := h.carts.GetCart(ctx, identity.UserID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildCartResponse(items))
}

func (h *CartHandlers) replaceCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req cartResponse
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
		return
	}

	items := make([]domain.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.CartItem{ProductRef: item.ProductRef, Quantity: item.Quantity})
	}

	updated, err := h.carts.ReplaceCart(ctx, identity.UserID, items)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildCartResponse(updated))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req cartItemPayload
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
		return
	}

	updated, err := h.carts.AddItem(ctx, identity.UserID, domain.CartItem{ProductRef: req.ProductRef, Quantity: req.Quantity})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildCartResponse(updated))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	updated, err := h.carts.RemoveItem(ctx, identity.UserID, chi.URLParam(r, "productRef"))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildCartResponse(updated))
}
