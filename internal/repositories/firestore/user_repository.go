package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/foodeli/api/internal/domain"
	pfirestore "github.com/foodeli/api/internal/platform/firestore"
	"github.com/foodeli/api/internal/repositories"
)

const (
	userCollection = "users"

	fieldUserEmail = "email"
)

// UserRepository persists user profiles together with their carts and favourites.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil)
	return &UserRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert stores a new user document keyed by the user ID.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	userID := strings.TrimSpace(user.ID)
	if userID == "" {
		return errors.New("user repository: user id is required")
	}
	_, err := r.base.Create(ctx, userID, userToDocument(user))
	return err
}

// FindByID loads a single user.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.User{}, err
	}
	return documentToUser(doc.ID, doc.Data), nil
}

// FindByEmail locates the user with the given email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	addr := strings.ToLower(strings.TrimSpace(email))
	if addr == "" {
		return domain.User{}, errors.New("user repository: email is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(fieldUserEmail, "==", addr).Limit(1)
	})
	if err != nil {
		return domain.User{}, err
	}
	if len(docs) == 0 {
		return domain.User{}, pfirestore.NotFoundError("users.findByEmail", fmt.Errorf("no user with email %s", addr))
	}
	return documentToUser(docs[0].ID, docs[0].Data), nil
}

// ReplaceCart overwrites the user's cart with the provided items.
func (r *UserRepository) ReplaceCart(ctx context.Context, userID string, items []domain.CartItem) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}

	docs := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		docs = append(docs, cartItemDocument{
			ProductRef: strings.TrimSpace(item.ProductRef),
			Quantity:   item.Quantity,
		})
	}

	if _, err := r.base.Update(ctx, uid, []firestore.Update{
		{Path: "cart", Value: docs},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}); err != nil {
		return domain.User{}, err
	}
	return r.FindByID(ctx, uid)
}

// ClearCart removes every item from the user's cart.
func (r *UserRepository) ClearCart(ctx context.Context, userID string) error {
	_, err := r.ReplaceCart(ctx, userID, nil)
	return err
}

// AddFavourite records a food in the user's favourites set.
func (r *UserRepository) AddFavourite(ctx context.Context, userID string, foodID string) (domain.User, error) {
	return r.updateFavourite(ctx, userID, foodID, firestore.ArrayUnion(strings.TrimSpace(foodID)))
}

// RemoveFavourite drops a food from the user's favourites set.
func (r *UserRepository) RemoveFavourite(ctx context.Context, userID string, foodID string) (domain.User, error) {
	return r.updateFavourite(ctx, userID, foodID, firestore.ArrayRemove(strings.TrimSpace(foodID)))
}

func (r *UserRepository) updateFavourite(ctx context.Context, userID string, foodID string, op any) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}
	if strings.TrimSpace(foodID) == "" {
		return domain.User{}, errors.New("user repository: food id is required")
	}

	if _, err := r.base.Update(ctx, uid, []firestore.Update{
		{Path: "favourites", Value: op},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}); err != nil {
		return domain.User{}, err
	}
	return r.FindByID(ctx, uid)
}

func userToDocument(user domain.User) userDocument {
	cart := make([]cartItemDocument, 0, len(user.Cart))
	for _, item := range user.Cart {
		cart = append(cart, cartItemDocument{
			ProductRef: strings.TrimSpace(item.ProductRef),
			Quantity:   item.Quantity,
		})
	}

	role := strings.ToLower(strings.TrimSpace(user.Role))
	if role == "" {
		role = domain.RoleUser
	}

	return userDocument{
		Name:       strings.TrimSpace(user.Name),
		Email:      strings.ToLower(strings.TrimSpace(user.Email)),
		Role:       role,
		Image:      strings.TrimSpace(user.Image),
		Cart:       cart,
		Favourites: append([]string(nil), user.Favourites...),
		CreatedAt:  user.CreatedAt.UTC(),
		UpdatedAt:  user.UpdatedAt.UTC(),
	}
}

func documentToUser(id string, doc userDocument) domain.User {
	cart := make([]domain.CartItem, 0, len(doc.Cart))
	for _, item := range doc.Cart {
		cart = append(cart, domain.CartItem{
			ProductRef: item.ProductRef,
			Quantity:   item.Quantity,
		})
	}

	return domain.User{
		ID:         id,
		Name:       doc.Name,
		Email:      doc.Email,
		Role:       doc.Role,
		Image:      doc.Image,
		Cart:       cart,
		Favourites: append([]string(nil), doc.Favourites...),
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

type cartItemDocument struct {
	ProductRef string `firestore:"productRef"`
	Quantity   int    `firestore:"quantity"`
}

type userDocument struct {
	Name       string             `firestore:"name"`
	Email      string             `firestore:"email"`
	Role       string             `firestore:"role"`
	Image      string             `firestore:"image,omitempty"`
	Cart       []cartItemDocument `firestore:"cart"`
	Favourites []string           `firestore:"favourites"`
	CreatedAt  time.Time          `firestore:"createdAt"`
	UpdatedAt  time.Time          `firestore:"updatedAt"`
}

var _ repositories.UserRepository = (*UserRepository)(nil)
