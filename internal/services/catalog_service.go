package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foodeli/api/internal/domain"
	"github.com/foodeli/api/internal/repositories"
)

var (
	// ErrFoodInvalidInput signals the caller provided invalid catalog data.
	ErrFoodInvalidInput = errors.New("catalog: invalid input")
	// ErrFoodNotFound indicates the catalog item does not exist.
	ErrFoodNotFound = errors.New("catalog: food not found")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Foods       repositories.FoodRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogService struct {
	foods repositories.FoodRepository
	clock func() time.Time
	newID func() string
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Foods == nil {
		return nil, errors.New("catalog service: food repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}

	return &catalogService{
		foods: deps.Foods,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

func (s *catalogService) ListFoods(ctx context.Context, filter CatalogFilter) ([]domain.Food, error) {
	foods, err := s.foods.List(ctx, repositories.FoodFilter{
		Category: strings.TrimSpace(filter.Category),
		Search:   strings.TrimSpace(filter.Search),
	})
	if err != nil {
		return nil, err
	}
	return foods, nil
}

func (s *catalogService) GetFood(ctx context.Context, foodID string) (domain.Food, error) {
	id := strings.TrimSpace(foodID)
	if id == "" {
		return domain.Food{}, fmt.Errorf("%w: food id is required", ErrFoodInvalidInput)
	}

	food, err := s.foods.FindByID(ctx, id)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Food{}, fmt.Errorf("%w: %s", ErrFoodNotFound, id)
		}
		return domain.Food{}, err
	}
	return food, nil
}

func (s *catalogService) CreateFood(ctx context.Context, cmd CreateFoodCommand) (domain.Food, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.Food{}, fmt.Errorf("%w: name is required", ErrFoodInvalidInput)
	}
	if cmd.Price.Mrp.Sign() <= 0 {
		return domain.Food{}, fmt.Errorf("%w: list price must be positive", ErrFoodInvalidInput)
	}
	if cmd.Price.Off < 0 || cmd.Price.Off > 100 {
		return domain.Food{}, fmt.Errorf("%w: discount must be between 0 and 100", ErrFoodInvalidInput)
	}

	now := s.clock()
	food := domain.Food{
		ID:          s.newID(),
		Name:        name,
		Description: strings.TrimSpace(cmd.Description),
		Image:       strings.TrimSpace(cmd.Image),
		Price:       cmd.Price,
		Categories:  append([]string(nil), cmd.Categories...),
		Ingredients: append([]string(nil), cmd.Ingredients...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.foods.Insert(ctx, food); err != nil {
		return domain.Food{}, err
	}
	return food, nil
}

// FavouriteServiceDeps bundles collaborators required to construct the favourites service.
type FavouriteServiceDeps struct {
	Users repositories.UserRepository
	Foods repositories.FoodRepository
}

type favouriteService struct {
	users repositories.UserRepository
	foods repositories.FoodRepository
}

// NewFavouriteService wires dependencies into a concrete FavouriteService implementation.
func NewFavouriteService(deps FavouriteServiceDeps) (FavouriteService, error) {
	if deps.Users == nil {
		return nil, errors.New("favourite service: user repository is required")
	}
	if deps.Foods == nil {
		return nil, errors.New("favourite service: food repository is required")
	}
	return &favouriteService{users: deps.Users, foods: deps.Foods}, nil
}

func (s *favouriteService) ListFavourites(ctx context.Context, userID string) ([]domain.Food, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrFoodInvalidInput)
	}

	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return nil, mapCartRepositoryError(err)
	}
	if len(user.Favourites) == 0 {
		return []domain.Food{}, nil
	}
	return s.foods.FindByIDs(ctx, user.Favourites)
}

func (s *favouriteService) AddFavourite(ctx context.Context, userID string, foodID string) error {
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(foodID)
	if uid == "" || id == "" {
		return fmt.Errorf("%w: user id and food id are required", ErrFoodInvalidInput)
	}

	if _, err := s.foods.FindByID(ctx, id); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return fmt.Errorf("%w: %s", ErrFoodNotFound, id)
		}
		return err
	}

	if _, err := s.users.AddFavourite(ctx, uid, id); err != nil {
		return mapCartRepositoryError(err)
	}
	return nil
}

func (s *favouriteService) RemoveFavourite(ctx context.Context, userID string, foodID string) error {
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(foodID)
	if uid == "" || id == "" {
		return fmt.Errorf("%w: user id and food id are required", ErrFoodInvalidInput)
	}

	if _, err := s.users.RemoveFavourite(ctx, uid, id); err != nil {
		return mapCartRepositoryError(err)
	}
	return nil
}
