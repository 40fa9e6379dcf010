package repository

import (
	"context"
	"time"

	"rentro/pkg/config"
	"rentro/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// RentalLockRepository provides per-vehicle advisory locks.
type RentalLockRepository interface {
	Create(ctx context.Context, lock *model.RentalLock) (*model.RentalLock, error)
	Delete(ctx context.Context, lockID string) error
	DeleteExpired(ctx context.Context, lockID string, now time.Time) error
}

type mongoRentalLockRepository struct {
	collection *mongo.Collection
}

func NewRentalLockRepository(cfg *config.Config) RentalLockRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoRentalLockRepository{
		collection: db.Collection("Rental_locks"),
	}
}

// Create inserts the lock document. A duplicate key error means another
// request currently holds the vehicle.
func (r *mongoRentalLockRepository) Create(ctx context.Context, lock *model.RentalLock) (*model.RentalLock, error) {
	lock.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, lock)
	if err != nil {
		return nil, err
	}

	return lock, nil
}

// Delete removes an advisory lock.
func (r *mongoRentalLockRepository) Delete(ctx context.Context, lockID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID})
	return err
}

// DeleteExpired removes the lock only if it is past its expiry. The TTL
// monitor reaps expired documents lazily; this lets a new request clear a
// crashed holder's lock as soon as the TTL elapses.
func (r *mongoRentalLockRepository) DeleteExpired(ctx context.Context, lockID string, now time.Time) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{
		"_id":        lockID,
		"expires_at": bson.M{"$lt": now},
	})
	return err
}
