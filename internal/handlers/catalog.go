package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/foodeli/api/internal/domain"
	"github.com/foodeli/api/internal/platform/auth"
	"github.com/foodeli/api/internal/platform/httpx"
	"github.com/foodeli/api/internal/services"
)

const maxFoodBodySize = 64 * 1024

// CatalogHandlers exposes the food catalog and favourites endpoints.
type CatalogHandlers struct {
	authn      *auth.Authenticator
	catalog    services.CatalogService
	favourites services.FavouriteService
}

// NewCatalogHandlers constructs handlers backed by the catalog and favourites services.
func NewCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService, favourites services.FavouriteService) *CatalogHandlers {
	return &CatalogHandlers{authn: authn, catalog: catalog, favourites: favourites}
}

// FoodRoutes wires the /food endpoints. Listing is public, mutation is admin-only.
func (h *CatalogHandlers) FoodRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listFoods)
	r.Get("/{foodId}", h.getFood)

	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAuth(auth.RoleAdmin))
		}
		admin.Post("/", h.createFood)
	})
}

// FavouriteRoutes wires the authenticated /favorite endpoints.
func (h *CatalogHandlers) FavouriteRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.listFavourites)
	r.Post("/{foodId}", h.addFavourite)
	r.Delete("/{foodId}", h.removeFavourite)
}

type foodPricePayload struct {
	Org string `json:"org"`
	Mrp string `json:"mrp"`
	Off int    `json:"off"`
}

type foodPayload struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Image       string           `json:"image,omitempty"`
	Price       foodPricePayload `json:"price"`
	Categories  []string         `json:"categories,omitempty"`
	Ingredients []string         `json:"ingredients,omitempty"`
	CreatedAt   string           `json:"createdAt,omitempty"`
}

func buildFoodPayload(food domain.Food) foodPayload {
	return foodPayload{
		ID:          food.ID,
		Name:        food.Name,
		Description: food.Description,
		Image:       food.Image,
		Price: foodPricePayload{
			Org: food.Price.Org.String(),
			Mrp: food.Price.Mrp.String(),
			Off: food.Price.Off,
		},
		Categories:  food.Categories,
		Ingredients: food.Ingredients,
		CreatedAt:   formatTime(food.CreatedAt),
	}
}

func (h *CatalogHandlers) listFoods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	foods, err := h.catalog.ListFoods(ctx, services.CatalogFilter{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	payload := make([]foodPayload, 0, len(foods))
	for _, food := range foods {
		payload = append(payload, buildFoodPayload(food))
	}
	writeData(w, http.StatusOK, payload)
}

func (h *CatalogHandlers) getFood(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	food, err := h.catalog.GetFood(ctx, chi.URLParam(r, "foodId"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildFoodPayload(food))
}

type createFoodRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Image       string           `json:"image"`
	Price       foodPricePayload `json:"price"`
	Categories  []string         `json:"categories"`
	Ingredients []string         `json:"ingredients"`
}

func (h *CatalogHandlers) createFood(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxFoodBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createFoodRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
		return
	}

	price, err := parseFoodPrice(req.Price)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	food, err := h.catalog.CreateFood(ctx, services.CreateFoodCommand{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		Price:       price,
		Categories:  req.Categories,
		Ingredients: req.Ingredients,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeMessage(w, http.StatusCreated, "food created", buildFoodPayload(food))
}

func parseFoodPrice(payload foodPricePayload) (domain.FoodPrice, error) {
	price := domain.FoodPrice{Off: payload.Off}

	if raw := strings.TrimSpace(payload.Org); raw != "" {
		org, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.FoodPrice{}, err
		}
		price.Org = org
	}
	if raw := strings.TrimSpace(payload.Mrp); raw != "" {
		mrp, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.FoodPrice{}, err
		}
		price.Mrp = mrp
	}
	return price, nil
}

func (h *CatalogHandlers) listFavourites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	foods, err := h.favourites.ListFavourites(ctx, identity.UserID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	payload := make([]foodPayload, 0, len(foods))
	for _, food := range foods {
		payload = append(payload, buildFoodPayload(food))
	}
	writeData(w, http.StatusOK, payload)
}

func (h *CatalogHandlers) addFavourite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.favourites.AddFavourite(ctx, identity.UserID, chi.URLParam(r, "foodId")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeMessage(w, http.StatusOK, "favourite added", nil)
}

func (h *CatalogHandlers) removeFavourite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.favourites.RemoveFavourite(ctx, identity.UserID, chi.URLParam(r, "foodId")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeMessage(w, http.StatusOK, "favourite removed", nil)
}
