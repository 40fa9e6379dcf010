// Package repository resolves the identities the allocation engine references
// but does not own: users and stores. Lookups only; the catalogs themselves
// are maintained elsewhere.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentro/pkg/config"
	"rentro/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	UsersCollectionName  = "Users"
	StoresCollectionName = "Stores"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrStoreNotFound = errors.New("store not found")
	ErrInvalidID     = errors.New("invalid ID format")
)

type DirectoryRepository interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetStore(ctx context.Context, id string) (*model.Store, error)
}

type mongoDirectoryRepository struct {
	cfg    *config.Config
	users  *mongo.Collection
	stores *mongo.Collection
}

func NewMongoDirectoryRepository(cfg *config.Config) DirectoryRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoDirectoryRepository{
		cfg:    cfg,
		users:  db.Collection(UsersCollectionName),
		stores: db.Collection(StoresCollectionName),
	}
}

func (r *mongoDirectoryRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoDirectoryRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidID, id)
	}

	var user model.User
	err = r.users.FindOne(ctx, bson.M{"_id": objectID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &user, nil
}

func (r *mongoDirectoryRepository) GetStore(ctx context.Context, id string) (*model.Store, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidID, id)
	}

	var store model.Store
	err = r.stores.FindOne(ctx, bson.M{"_id": objectID}).Decode(&store)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrStoreNotFound
		}
		return nil, fmt.Errorf("failed to find store: %w", err)
	}

	return &store, nil
}
