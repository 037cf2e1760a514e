package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/foodeli/api/internal/domain"
	"github.com/foodeli/api/internal/repositories"
)

var (
	// ErrCartInvalidInput signals the caller provided invalid cart data.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartUserNotFound indicates the owning user does not exist.
	ErrCartUserNotFound = errors.New("cart: user not found")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Users repositories.UserRepository
	Foods repositories.FoodRepository
}

type cartService struct {
	users repositories.UserRepository
	foods repositories.FoodRepository
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Users == nil {
		return nil, errors.New("cart service: user repository is required")
	}
	if deps.Foods == nil {
		return nil, errors.New("cart service: food repository is required")
	}
	return &cartService{users: deps.Users, foods: deps.Foods}, nil
}

func (s *cartService) GetCart(ctx context.Context, userID string) ([]domain.CartItem, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Cart, nil
}

func (s *cartService) ReplaceCart(ctx context.Context, userID string, items []domain.CartItem) ([]domain.CartItem, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	normalized, err := s.normalizeItems(ctx, items)
	if err != nil {
		return nil, err
	}

	user, err := s.users.ReplaceCart(ctx, uid, normalized)
	if err != nil {
		return nil, mapCartRepositoryError(err)
	}
	return user.Cart, nil
}

func (s *cartService) AddItem(ctx context.Context, userID string, item domain.CartItem) ([]domain.CartItem, error) {
	if strings.TrimSpace(item.ProductRef) == "" {
		return nil, fmt.Errorf("%w: product reference is required", ErrCartInvalidInput)
	}
	if item.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.foods.FindByID(ctx, item.ProductRef); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil, fmt.Errorf("%w: unknown product %s", ErrCartInvalidInput, item.ProductRef)
		}
		return nil, err
	}

	// Re-adding a product accumulates quantity rather than duplicating the line.
	cart := append([]domain.CartItem(nil), user.Cart...)
	merged := false
	for i := range cart {
		if cart[i].ProductRef == item.ProductRef {
			cart[i].Quantity += item.Quantity
			merged = true
			break
		}
	}
	if !merged {
		cart = append(cart, item)
	}

	updated, err := s.users.ReplaceCart(ctx, user.ID, cart)
	if err != nil {
		return nil, mapCartRepositoryError(err)
	}
	return updated.Cart, nil
}

func (s *cartService) RemoveItem(ctx context.Context, userID string, productRef string) ([]domain.CartItem, error) {
	ref := strings.TrimSpace(productRef)
	if ref == "" {
		return nil, fmt.Errorf("%w: product reference is required", ErrCartInvalidInput)
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	cart := make([]domain.CartItem, 0, len(user.Cart))
	for _, existing := range user.Cart {
		if existing.ProductRef == ref {
			continue
		}
		cart = append(cart, existing)
	}
	if len(cart) == len(user.Cart) {
		return user.Cart, nil
	}

	updated, err := s.users.ReplaceCart(ctx, user.ID, cart)
	if err != nil {
		return nil, mapCartRepositoryError(err)
	}
	return updated.Cart, nil
}

func (s *cartService) normalizeItems(ctx context.Context, items []domain.CartItem) ([]domain.CartItem, error) {
	normalized := make([]domain.CartItem, 0, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ref := strings.TrimSpace(item.ProductRef)
		if ref == "" {
			return nil, fmt.Errorf("%w: product reference is required", ErrCartInvalidInput)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
		}
		normalized = append(normalized, domain.CartItem{ProductRef: ref, Quantity: item.Quantity})
		ids = append(ids, ref)
	}

	if len(ids) > 0 {
		found, err := s.foods.FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		known := make(map[string]struct{}, len(found))
		for _, food := range found {
			known[food.ID] = struct{}{}
		}
		for _, ref := range ids {
			if _, ok := known[ref]; !ok {
				return nil, fmt.Errorf("%w: unknown product %s", ErrCartInvalidInput, ref)
			}
		}
	}

	return normalized, nil
}

func (s *cartService) findUser(ctx context.Context, userID string) (domain.User, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.User{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return domain.User{}, mapCartRepositoryError(err)
	}
	return user, nil
}

func mapCartRepositoryError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrCartUserNotFound, err)
	}
	return err
}
