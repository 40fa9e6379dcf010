package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	directoryrepo "rentro/internal/directory/repository"
	"rentro/internal/events"
	fleeterrors "rentro/internal/fleet/errors"
	fleetrepo "rentro/internal/fleet/repository"
	ledgersvc "rentro/internal/ledger/service"
	rentalserrors "rentro/internal/rentals/errors"
	"rentro/internal/rentals/pricing"
	"rentro/internal/rentals/repository"
	"rentro/internal/rentals/validator"
	"rentro/pkg/clock"
	"rentro/pkg/config"
	apperrors "rentro/pkg/errors"
	"rentro/pkg/model"
	"rentro/pkg/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/mongo"
)

// RentalService is the allocation engine. It owns every rental state
// transition and the vehicle status that mirrors it.
type RentalService interface {
	Create(ctx context.Context, rental *model.Rental) error
	GetByID(ctx context.Context, id string) (*model.Rental, error)
	GetByReference(ctx context.Context, reference string) (*model.Rental, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Rental, int64, error)
	GetUserRentals(ctx context.Context, userID string, limit int, offset int64) ([]*model.Rental, int64, error)
	Activate(ctx context.Context, id string) (*model.Rental, error)
	Return(ctx context.Context, id, returnStoreID string) (*model.Rental, error)
	Cancel(ctx context.Context, id string) error
}

type rentalService struct {
	repo      repository.RentalRepository
	lockRepo  repository.RentalLockRepository
	vehicles  fleetrepo.VehicleRepository
	directory directoryrepo.DirectoryRepository
	ledger    ledgersvc.LedgerService
	publisher events.Publisher
	validator *validator.RentalValidator
	clock     clock.Clock
	cfg       *config.Config
}

func NewRentalService(
	repo repository.RentalRepository,
	lockRepo repository.RentalLockRepository,
	vehicles fleetrepo.VehicleRepository,
	directory directoryrepo.DirectoryRepository,
	ledger ledgersvc.LedgerService,
	publisher events.Publisher,
	rentalValidator *validator.RentalValidator,
	clk clock.Clock,
	cfg *config.Config,
) RentalService {
	return &rentalService{
		repo:      repo,
		lockRepo:  lockRepo,
		vehicles:  vehicles,
		directory: directory,
		ledger:    ledger,
		publisher: publisher,
		validator: rentalValidator,
		clock:     clk,
		cfg:       cfg,
	}
}

// Create allocates a vehicle for the requested interval. The conflict check
// and the rental insert run in one transaction, serialized per vehicle by an
// advisory lock, so two overlapping requests can never both succeed.
func (s *rentalService) Create(ctx context.Context, rental *model.Rental) error {
	// Server-owned fields; client-supplied values are ignored.
	rental.ID = ""
	rental.Status = model.RentalStatusPending
	rental.ActualReturnTime = nil

	if err := s.validator.ValidateCreate(rental, s.clock.Now()); err != nil {
		s.cfg.Log.Warn("Rental validation failed", "error", err)
		return apperrors.Validation("Rental validation failed", map[string]any{"error": err.Error()})
	}

	if _, err := s.directory.GetUser(ctx, rental.UserID); err != nil {
		return s.mapDirectoryErr(err, "User", rental.UserID)
	}
	if _, err := s.directory.GetStore(ctx, rental.PickupStoreID); err != nil {
		return s.mapDirectoryErr(err, "Pickup store", rental.PickupStoreID)
	}
	if _, err := s.directory.GetStore(ctx, rental.ReturnStoreID); err != nil {
		return s.mapDirectoryErr(err, "Return store", rental.ReturnStoreID)
	}

	vehicle, err := s.findVehicle(ctx, rental.VehicleID)
	if err != nil {
		return err
	}

	// Fast-path rejection before taking the lock. The authoritative check
	// repeats inside the transaction.
	if vehicle.Status != model.VehicleStatusAvailable {
		return apperrors.Conflict(fmt.Sprintf("Vehicle is not currently allocatable (status: %s)", vehicle.Status))
	}

	dailyRate, err := money.FromDecimal128(vehicle.DailyRate)
	if err != nil {
		return apperrors.Internal("Failed to decode vehicle daily rate", err)
	}

	lockID, err := s.acquireVehicleLock(ctx, rental.VehicleID)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := s.releaseVehicleLock(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release vehicle lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx context.Context) error {
		current, err := s.findVehicle(sessCtx, rental.VehicleID)
		if err != nil {
			return err
		}
		if current.Status != model.VehicleStatusAvailable {
			return apperrors.Conflict(fmt.Sprintf("Vehicle is not currently allocatable (status: %s)", current.Status))
		}

		if err := s.verifyNoConflicts(sessCtx, rental); err != nil {
			return err
		}

		rental.Reference = s.generateReference()
		rental.TotalAmount = money.MustDecimal128(pricing.RentalTotal(dailyRate, rental.StartTime, rental.EndTime))

		if err := s.repo.Create(sessCtx, rental); err != nil {
			if errors.Is(err, rentalserrors.ErrDuplicateReference) {
				return apperrors.ConflictRetryable("Rental reference collision, please retry")
			}
			return apperrors.Internal("Failed to create rental", err)
		}

		if err := s.vehicles.UpdateStatus(sessCtx, rental.VehicleID, model.VehicleStatusRented); err != nil {
			return apperrors.Internal("Failed to update vehicle status", err)
		}

		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to create rental", "vehicle_id", rental.VehicleID, "error", err)
		return err
	}

	s.cfg.Log.Info("Rental created successfully",
		"id", rental.ID,
		"reference", rental.Reference,
		"vehicle_id", rental.VehicleID,
		"user_id", rental.UserID,
		"start_time", rental.StartTime,
		"end_time", rental.EndTime,
	)

	s.recordLedger(ctx, rental.ID, pricing.Deposit(dailyRate), model.PaymentCategoryDeposit)
	s.publishEvent(ctx, events.TypeRentalCreated, rental)
	return nil
}

func (s *rentalService) GetByID(ctx context.Context, id string) (*model.Rental, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Rental ID cannot be empty")
	}

	rental, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapRentalErr(err, id)
	}

	return rental, nil
}

func (s *rentalService) GetByReference(ctx context.Context, reference string) (*model.Rental, error) {
	if reference == "" {
		return nil, apperrors.InvalidInput("Rental reference cannot be empty")
	}

	rental, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, rentalserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Rental", reference)
		}
		return nil, apperrors.Internal("Failed to retrieve rental", err)
	}

	return rental, nil
}

func (s *rentalService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Rental, int64, error) {
	var count int64
	var rentals []*model.Rental
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count rentals", "error", errCount)
			errCount = apperrors.Internal("Failed to count rentals", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		rentals, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list rentals", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve rentals", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return rentals, count, nil
}

func (s *rentalService) GetUserRentals(ctx context.Context, userID string, limit int, offset int64) ([]*model.Rental, int64, error) {
	if userID == "" {
		return nil, 0, apperrors.InvalidInput("User ID cannot be empty")
	}

	var count int64
	var rentals []*model.Rental
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.CountByUser(ctx, userID)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count user rentals", "user_id", userID, "error", errCount)
			errCount = apperrors.Internal("Failed to count rentals", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		rentals, errFind = s.repo.FindByUser(ctx, userID, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list user rentals", "user_id", userID, "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve rentals", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return rentals, count, nil
}

// Activate marks a pending rental as in use, at physical pickup. The step is
// optional: Return accepts both pending and active rentals.
func (s *rentalService) Activate(ctx context.Context, id string) (*model.Rental, error) {
	rental, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if rental.Status != model.RentalStatusPending {
		return nil, apperrors.Conflict(fmt.Sprintf("Rental cannot be activated (status: %s)", rental.Status))
	}

	rental.Status = model.RentalStatusActive
	if err := s.repo.UpdateLifecycle(ctx, id, rental, []string{model.RentalStatusPending}); err != nil {
		return nil, s.mapLifecycleErr(err, id)
	}

	s.cfg.Log.Info("Rental activated", "id", id, "reference", rental.Reference)
	s.publishEvent(ctx, events.TypeRentalActivated, rental)
	return rental, nil
}

// Return completes a rental. Overdue returns incur a penalty added to the
// total; a return at a different store relocates the vehicle there.
func (s *rentalService) Return(ctx context.Context, id, returnStoreID string) (*model.Rental, error) {
	rental, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if rental.IsTerminal() {
		return nil, apperrors.Conflict(fmt.Sprintf("Rental is already %s", rental.Status))
	}

	if _, err := s.directory.GetStore(ctx, returnStoreID); err != nil {
		return nil, s.mapDirectoryErr(err, "Return store", returnStoreID)
	}

	vehicle, err := s.findVehicle(ctx, rental.VehicleID)
	if err != nil {
		return nil, err
	}

	dailyRate, err := money.FromDecimal128(vehicle.DailyRate)
	if err != nil {
		return nil, apperrors.Internal("Failed to decode vehicle daily rate", err)
	}

	baseTotal, err := money.FromDecimal128(rental.TotalAmount)
	if err != nil {
		return nil, apperrors.Internal("Failed to decode rental amount", err)
	}

	var total, penalty decimal.Decimal
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx context.Context) error {
		now := s.clock.Now()
		penalty = pricing.OverduePenalty(dailyRate, rental.EndTime, now)
		total = baseTotal.Add(penalty)

		rental.ActualReturnTime = &now
		rental.Status = model.RentalStatusCompleted
		rental.TotalAmount = money.MustDecimal128(total)

		if err := s.repo.UpdateLifecycle(sessCtx, id, rental, model.BlockingRentalStatuses()); err != nil {
			return s.mapLifecycleErr(err, id)
		}

		if vehicle.StoreID != returnStoreID {
			// One-way return: the vehicle now lives at the return store.
			if err := s.vehicles.UpdateStoreAndStatus(sessCtx, rental.VehicleID, returnStoreID, model.VehicleStatusAvailable); err != nil {
				return apperrors.Internal("Failed to relocate vehicle", err)
			}
			return nil
		}

		if err := s.vehicles.UpdateStatus(sessCtx, rental.VehicleID, model.VehicleStatusAvailable); err != nil {
			return apperrors.Internal("Failed to update vehicle status", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to return rental", "id", id, "error", err)
		return nil, err
	}

	s.cfg.Log.Info("Rental returned",
		"id", id,
		"reference", rental.Reference,
		"overdue", penalty.IsPositive(),
		"penalty", penalty.StringFixed(money.Places),
	)

	s.recordLedger(ctx, rental.ID, total, model.PaymentCategoryFinal)
	if penalty.IsPositive() {
		s.recordLedger(ctx, rental.ID, penalty, model.PaymentCategoryPenalty)
	}
	s.publishEvent(ctx, events.TypeRentalReturned, rental)
	return rental, nil
}

// Cancel voids a rental that has not been completed. The second cancel of
// the same rental fails with a conflict and leaves the vehicle untouched.
func (s *rentalService) Cancel(ctx context.Context, id string) error {
	rental, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if rental.IsTerminal() {
		return apperrors.Conflict(fmt.Sprintf("Rental is already %s", rental.Status))
	}

	rental.Status = model.RentalStatusCancelled

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx context.Context) error {
		if err := s.repo.UpdateLifecycle(sessCtx, id, rental, model.BlockingRentalStatuses()); err != nil {
			return s.mapLifecycleErr(err, id)
		}
		if err := s.vehicles.UpdateStatus(sessCtx, rental.VehicleID, model.VehicleStatusAvailable); err != nil {
			return apperrors.Internal("Failed to update vehicle status", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to cancel rental", "id", id, "error", err)
		return err
	}

	s.cfg.Log.Info("Rental cancelled", "id", id, "reference", rental.Reference)
	s.publishEvent(ctx, events.TypeRentalCancelled, rental)
	return nil
}

// --- Helpers ---

func (s *rentalService) verifyNoConflicts(ctx context.Context, rental *model.Rental) error {
	conflicts, err := s.repo.FindConflicts(ctx, rental.VehicleID, rental.StartTime, rental.EndTime, model.BlockingRentalStatuses())
	if err != nil {
		return apperrors.Internal("Failed to check existing rentals", err)
	}

	for _, existing := range conflicts {
		if existing.ID == rental.ID {
			continue
		}
		return apperrors.Conflict(fmt.Sprintf(
			"Vehicle is already booked between %s and %s",
			existing.StartTime.Format(time.RFC3339),
			existing.EndTime.Format(time.RFC3339),
		))
	}
	return nil
}

// acquireVehicleLock serializes check-then-write sequences per vehicle. The
// lock is a document with a unique _id; the loser of a concurrent insert
// gets a duplicate key error and surfaces as a retryable conflict.
func (s *rentalService) acquireVehicleLock(ctx context.Context, vehicleID string) (string, error) {
	lockID := fmt.Sprintf("vehicle_lock_%s", vehicleID)

	lock := &model.RentalLock{
		ID:        lockID,
		ExpiresAt: s.clock.Now().Add(s.cfg.LockTTL),
	}

	_, err := s.lockRepo.Create(ctx, lock)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		// The TTL monitor reaps expired lock documents lazily. Clearing an
		// already-expired lock here caps a crashed holder's hold at the TTL.
		if reapErr := s.lockRepo.DeleteExpired(ctx, lockID, s.clock.Now()); reapErr != nil {
			s.cfg.Log.Warn("Failed to reap expired vehicle lock", "lock_id", lockID, "error", reapErr)
		} else {
			_, err = s.lockRepo.Create(ctx, lock)
		}
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", apperrors.ConflictRetryable("This vehicle is currently being booked by another request. Please try again.")
		}
		return "", apperrors.Internal("Failed to acquire vehicle lock", err)
	}

	return lockID, nil
}

func (s *rentalService) releaseVehicleLock(ctx context.Context, lockID string) error {
	return s.lockRepo.Delete(ctx, lockID)
}

// generateReference builds the human-scannable rental reference: a timestamp
// prefix plus a random suffix, unique under the Rentals reference index.
func (s *rentalService) generateReference() string {
	suffix := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("RNT-%d-%s", s.clock.Now().UnixMilli(), suffix)
}

func (s *rentalService) findVehicle(ctx context.Context, id string) (*model.Vehicle, error) {
	vehicle, err := s.vehicles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, fleeterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Vehicle", id)
		}
		if errors.Is(err, fleeterrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid vehicle ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve vehicle", err)
	}
	return vehicle, nil
}

func (s *rentalService) mapRentalErr(err error, id string) error {
	if errors.Is(err, rentalserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Rental", id)
	}
	if errors.Is(err, rentalserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid rental ID format")
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Internal("Failed to retrieve rental", err)
}

// mapLifecycleErr translates a guarded lifecycle write failure. A write that
// matched no document in the expected prior status lost to a concurrent
// transition and surfaces as a conflict.
func (s *rentalService) mapLifecycleErr(err error, id string) error {
	if errors.Is(err, rentalserrors.ErrStatusChanged) {
		return apperrors.Conflict("Rental was modified by another request")
	}
	return s.mapRentalErr(err, id)
}

func (s *rentalService) mapDirectoryErr(err error, resource, id string) error {
	if errors.Is(err, directoryrepo.ErrUserNotFound) || errors.Is(err, directoryrepo.ErrStoreNotFound) {
		return apperrors.NotFoundWithID(resource, id)
	}
	if errors.Is(err, directoryrepo.ErrInvalidID) {
		return apperrors.InvalidInput(fmt.Sprintf("Invalid %s ID format", strings.ToLower(resource)))
	}
	return apperrors.Internal(fmt.Sprintf("Failed to resolve %s", strings.ToLower(resource)), err)
}

// recordLedger writes a ledger entry without gating the rental transition:
// the entry is bookkeeping, and a failure here is logged, not returned.
func (s *rentalService) recordLedger(ctx context.Context, rentalID string, amount decimal.Decimal, category string) {
	if _, err := s.ledger.Record(context.WithoutCancel(ctx), rentalID, amount, category); err != nil {
		s.cfg.Log.Error("Failed to record ledger entry",
			"rental_id", rentalID,
			"category", category,
			"error", err,
		)
	}
}

func (s *rentalService) publishEvent(ctx context.Context, eventType string, rental *model.Rental) {
	amount, err := money.FromDecimal128(rental.TotalAmount)
	amountStr := ""
	if err == nil {
		amountStr = amount.StringFixed(money.Places)
	}

	event := events.RentalEvent{
		Type:       eventType,
		RentalID:   rental.ID,
		Reference:  rental.Reference,
		VehicleID:  rental.VehicleID,
		UserID:     rental.UserID,
		Status:     rental.Status,
		Amount:     amountStr,
		OccurredAt: s.clock.Now(),
	}

	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.cfg.Log.Warn("Failed to publish rental event",
			"type", eventType,
			"rental_id", rental.ID,
			"error", err,
		)
	}
}
