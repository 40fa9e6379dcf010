package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	rentalserrors "rentro/internal/rentals/errors"
	"rentro/pkg/config"
	mongotx "rentro/pkg/db/mongo"
	"rentro/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Rentals"
)

type RentalRepository interface {
	Create(ctx context.Context, rental *model.Rental) error
	FindByID(ctx context.Context, id string) (*model.Rental, error)
	FindByReference(ctx context.Context, reference string) (*model.Rental, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Rental, error)
	Count(ctx context.Context) (int64, error)
	FindByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.Rental, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	FindConflicts(ctx context.Context, vehicleID string, start, end time.Time, statuses []string) ([]*model.Rental, error)
	FindConflictingVehicleIDs(ctx context.Context, start, end time.Time, statuses []string) ([]string, error)
	UpdateLifecycle(ctx context.Context, id string, rental *model.Rental, fromStatuses []string) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TxFunc) error
}

type mongoRentalRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoRentalRepository(cfg *config.Config) RentalRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoRentalRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo.Client),
	}
}

// withTimeout wraps the context with a timeout unless we are already inside a
// transaction: a SessionContext cannot be re-wrapped without breaking
// transaction semantics, so it is returned unchanged with a no-op cancel.
func (r *mongoRentalRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoRentalRepository) Create(ctx context.Context, rental *model.Rental) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	rental.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, rental)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", rentalserrors.ErrDuplicateReference, rental.Reference)
		}
		return fmt.Errorf("failed to create rental: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		rental.ID = oid.Hex()
	}
	return nil
}

func (r *mongoRentalRepository) FindByID(ctx context.Context, id string) (*model.Rental, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", rentalserrors.ErrInvalidID, id)
	}

	var rental model.Rental
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&rental)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, rentalserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find rental: %w", err)
	}

	return &rental, nil
}

func (r *mongoRentalRepository) FindByReference(ctx context.Context, reference string) (*model.Rental, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var rental model.Rental
	err := r.collection.FindOne(ctx, bson.M{"reference": reference}).Decode(&rental)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, rentalserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find rental by reference: %w", err)
	}

	return &rental, nil
}

func (r *mongoRentalRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Rental, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find rentals: %w", err)
	}
	defer cursor.Close(ctx)

	var rentals []*model.Rental
	if err = cursor.All(ctx, &rentals); err != nil {
		return nil, fmt.Errorf("failed to decode rentals: %w", err)
	}

	return rentals, nil
}

func (r *mongoRentalRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count rentals: %w", err)
	}

	return count, nil
}

func (r *mongoRentalRepository) FindByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.Rental, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find rentals for user: %w", err)
	}
	defer cursor.Close(ctx)

	var rentals []*model.Rental
	if err = cursor.All(ctx, &rentals); err != nil {
		return nil, fmt.Errorf("failed to decode rentals: %w", err)
	}

	return rentals, nil
}

func (r *mongoRentalRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count rentals for user: %w", err)
	}
	return count, nil
}

// FindConflicts returns rentals on the vehicle whose interval overlaps
// [start, end) under the half-open predicate: existing.start < end AND
// existing.end > start. Only the supplied statuses are considered.
func (r *mongoRentalRepository) FindConflicts(ctx context.Context, vehicleID string, start, end time.Time, statuses []string) ([]*model.Rental, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, conflictFilter(start, end, statuses, bson.M{"vehicle_id": vehicleID}))
	if err != nil {
		return nil, fmt.Errorf("failed to find conflicting rentals: %w", err)
	}
	defer cursor.Close(ctx)

	var rentals []*model.Rental
	if err = cursor.All(ctx, &rentals); err != nil {
		return nil, fmt.Errorf("failed to decode conflicting rentals: %w", err)
	}

	return rentals, nil
}

// FindConflictingVehicleIDs returns the distinct vehicle IDs that have at
// least one rental in the supplied statuses overlapping [start, end). Used by
// the availability search to exclude booked vehicles with one query.
func (r *mongoRentalRepository) FindConflictingVehicleIDs(ctx context.Context, start, end time.Time, statuses []string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	values, err := r.collection.Distinct(ctx, "vehicle_id", conflictFilter(start, end, statuses, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to find conflicting vehicle ids: %w", err)
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func conflictFilter(start, end time.Time, statuses []string, extra bson.M) bson.M {
	filter := bson.M{
		"status":     bson.M{"$in": statuses},
		"start_time": bson.M{"$lt": end},
		"end_time":   bson.M{"$gt": start},
	}
	for k, v := range extra {
		filter[k] = v
	}
	return filter
}

// UpdateLifecycle persists the fields the engine mutates after creation:
// status, total amount and actual return time. The update matches only when
// the stored status is one of fromStatuses, so a concurrent transition loses
// with ErrStatusChanged instead of overwriting a terminal state.
func (r *mongoRentalRepository) UpdateLifecycle(ctx context.Context, id string, rental *model.Rental, fromStatuses []string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", rentalserrors.ErrInvalidID, id)
	}

	set := bson.M{
		"status":       rental.Status,
		"total_amount": rental.TotalAmount,
	}
	if rental.ActualReturnTime != nil {
		set["actual_return_time"] = *rental.ActualReturnTime
	}

	filter := bson.M{
		"_id":    objectID,
		"status": bson.M{"$in": fromStatuses},
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update rental: %w", err)
	}

	if result.MatchedCount == 0 {
		return rentalserrors.ErrStatusChanged
	}

	return nil
}

func (r *mongoRentalRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TxFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
