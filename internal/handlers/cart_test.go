package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	domain "github.com/foodeli/api/internal/domain"
	"github.com/foodeli/api/internal/services"
)

type stubCartService struct {
	items []domain.CartItem
	err   error
}

func (s *stubCartService) GetCart(context.Context, string) ([]domain.CartItem, error) {
	return s.items, s.err
}

func (s *stubCartService) ReplaceCart(_ context.Context, _ string, items []domain.CartItem) ([]domain.CartItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.items = items
	return s.items, nil
}

func (s *stubCartService) AddItem(_ context.Context, _ string, item domain.CartItem) ([]domain.CartItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.items = append(s.items, item)
	return s.items, nil
}

func (s *stubCartService) RemoveItem(_ context.Context, _ string, productRef string) ([]domain.CartItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	kept := s.items[:0]
	for _, item := range s.items {
		if item.ProductRef != productRef {
			kept = append(kept, item)
		}
	}
	s.items = kept
	return s.items, nil
}

func newCartRouter(service *stubCartService) http.Handler {
	handlers := NewCartHandlers(testAuthenticator(), service)
	return NewRouter(WithCartRoutes(handlers.Routes))
}

func TestGetCartEndpoint(t *testing.T) {
	service := &stubCartService{items: []domain.CartItem{{ProductRef: "food-1", Quantity: 2}}}
	router := newCartRouter(service)

	rr := doRequest(t, router, http.MethodGet, "/user/cart", "user-token", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Data cartResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Data.Items) != 1 || body.Data.Items[0].ProductRef != "food-1" {
		t.Fatalf("unexpected cart %+v", body.Data)
	}
}

func TestCartRequiresAuth(t *testing.T) {
	router := newCartRouter(&stubCartService{})

	rr := doRequest(t, router, http.MethodGet, "/user/cart", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAddCartItemEndpoint(t *testing.T) {
	service := &stubCartService{}
	router := newCartRouter(service)

	rr := doRequest(t, router, http.MethodPost, "/user/cart", "user-token", `{"productRef":"food-2","quantity":3}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(service.items) != 1 || service.items[0].Quantity != 3 {
		t.Fatalf("unexpected stored cart %+v", service.items)
	}
}

func TestRemoveCartItemEndpoint(t *testing.T) {
	service := &stubCartService{items: []domain.CartItem{{ProductRef: "food-1", Quantity: 1}}}
	router := newCartRouter(service)

	rr := doRequest(t, router, http.MethodDelete, "/user/cart/food-1", "user-token", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(service.items) != 0 {
		t.Fatalf("expected item removed, got %+v", service.items)
	}
}

func TestCartServiceErrorsMapToStatus(t *testing.T) {
	service := &stubCartService{err: fmt.Errorf("%w: lookup failed", services.ErrCartUserNotFound)}
	router := newCartRouter(service)

	rr := doRequest(t, router, http.MethodGet, "/user/cart", "user-token", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
