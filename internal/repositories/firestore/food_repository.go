package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/foodeli/api/internal/domain"
	pfirestore "github.com/foodeli/api/internal/platform/firestore"
	"github.com/foodeli/api/internal/repositories"
)

const (
	foodCollection = "foods"

	fieldFoodCategories = "categories"

	defaultCatalogLimit = 100
)

// FoodRepository persists the food catalog.
type FoodRepository struct {
	base *pfirestore.BaseRepository[foodDocument]
}

// NewFoodRepository constructs a Firestore-backed food repository.
func NewFoodRepository(provider *pfirestore.Provider) (*FoodRepository, error) {
	if provider == nil {
		return nil, errors.New("food repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[foodDocument](provider, foodCollection, nil)
	return &FoodRepository{base: base}, nil
}

// Insert stores a new catalog item keyed by the food ID.
func (r *FoodRepository) Insert(ctx context.Context, food domain.Food) error {
	if r == nil || r.base == nil {
		return errors.New("food repository not initialised")
	}
	foodID := strings.TrimSpace(food.ID)
	if foodID == "" {
		return errors.New("food repository: food id is required")
	}
	_, err := r.base.Create(ctx, foodID, foodToDocument(food))
	return err
}

// List returns catalog items matching the filter.
func (r *FoodRepository) List(ctx context.Context, filter repositories.FoodFilter) ([]domain.Food, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("food repository not initialised")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultCatalogLimit
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where(fieldFoodCategories, "array-contains", category)
		}
		return q.Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	// Name search is applied in memory; Firestore offers no substring queries.
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	foods := make([]domain.Food, 0, len(docs))
	for _, doc := range docs {
		food, mapErr := documentToFood(doc.ID, doc.Data)
		if mapErr != nil {
			return nil, mapErr
		}
		if search != "" && !strings.Contains(strings.ToLower(food.Name), search) {
			continue
		}
		foods = append(foods, food)
	}
	return foods, nil
}

// FindByID loads a single catalog item.
func (r *FoodRepository) FindByID(ctx context.Context, foodID string) (domain.Food, error) {
	if r == nil || r.base == nil {
		return domain.Food{}, errors.New("food repository not initialised")
	}
	id := strings.TrimSpace(foodID)
	if id == "" {
		return domain.Food{}, errors.New("food repository: food id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Food{}, err
	}
	return documentToFood(doc.ID, doc.Data)
}

// FindByIDs loads the catalog items for the given IDs, skipping absent ones.
func (r *FoodRepository) FindByIDs(ctx context.Context, foodIDs []string) ([]domain.Food, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("food repository not initialised")
	}

	foods := make([]domain.Food, 0, len(foodIDs))
	seen := make(map[string]struct{}, len(foodIDs))
	for _, foodID := range foodIDs {
		id := strings.TrimSpace(foodID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		food, err := r.FindByID(ctx, id)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		foods = append(foods, food)
	}
	return foods, nil
}

func foodToDocument(food domain.Food) foodDocument {
	return foodDocument{
		Name:        strings.TrimSpace(food.Name),
		Description: strings.TrimSpace(food.Description),
		Image:       strings.TrimSpace(food.Image),
		Price: foodPriceDocument{
			Org: food.Price.Org.String(),
			Mrp: food.Price.Mrp.String(),
			Off: food.Price.Off,
		},
		Categories:  append([]string(nil), food.Categories...),
		Ingredients: append([]string(nil), food.Ingredients...),
		CreatedAt:   food.CreatedAt.UTC(),
		UpdatedAt:   food.UpdatedAt.UTC(),
	}
}

func documentToFood(id string, doc foodDocument) (domain.Food, error) {
	org, err := parsePrice(doc.Price.Org, "price.org")
	if err != nil {
		return domain.Food{}, err
	}
	mrp, err := parsePrice(doc.Price.Mrp, "price.mrp")
	if err != nil {
		return domain.Food{}, err
	}

	return domain.Food{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Image:       doc.Image,
		Price: domain.FoodPrice{
			Org: org,
			Mrp: mrp,
			Off: doc.Price.Off,
		},
		Categories:  append([]string(nil), doc.Categories...),
		Ingredients: append([]string(nil), doc.Ingredients...),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}, nil
}

func parsePrice(raw string, field string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("food repository: invalid %s %q: %w", field, raw, err)
	}
	return value, nil
}

type foodPriceDocument struct {
	Org string `firestore:"org"`
	Mrp string `firestore:"mrp"`
	Off int    `firestore:"off"`
}

type foodDocument struct {
	Name        string            `firestore:"name"`
	Description string            `firestore:"description,omitempty"`
	Image       string            `firestore:"image,omitempty"`
	Price       foodPriceDocument `firestore:"price"`
	Categories  []string          `firestore:"categories"`
	Ingredients []string          `firestore:"ingredients,omitempty"`
	CreatedAt   time.Time         `firestore:"createdAt"`
	UpdatedAt   time.Time         `firestore:"updatedAt"`
}

var _ repositories.FoodRepository = (*FoodRepository)(nil)
