package service

import (
	"context"
	"io"
	"testing"
	"time"

	directoryrepo "rentro/internal/directory/repository"
	"rentro/internal/events"
	fleeterrors "rentro/internal/fleet/errors"
	rentalserrors "rentro/internal/rentals/errors"
	"rentro/internal/rentals/validator"
	"rentro/pkg/clock"
	"rentro/pkg/config"
	mongotx "rentro/pkg/db/mongo"
	apperrors "rentro/pkg/errors"
	"rentro/pkg/logger"
	"rentro/pkg/model"
	"rentro/pkg/money"

	"github.com/shopspring/decimal"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

var (
	now       = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userID    = "507f1f77bcf86cd799439011"
	vehicleID = "507f1f77bcf86cd799439012"
	storeID   = "507f1f77bcf86cd799439013"
	otherID   = "507f1f77bcf86cd799439014"
	rentalID  = "507f1f77bcf86cd799439015"
)

// --- Mocks ---

type mockRentalRepo struct {
	createFn            func(ctx context.Context, rental *model.Rental) error
	findByIDFn          func(ctx context.Context, id string) (*model.Rental, error)
	findByReferenceFn   func(ctx context.Context, reference string) (*model.Rental, error)
	findAllFn           func(ctx context.Context, limit int, offset int64) ([]*model.Rental, error)
	countFn             func(ctx context.Context) (int64, error)
	findByUserFn        func(ctx context.Context, userID string, limit int, offset int64) ([]*model.Rental, error)
	countByUserFn       func(ctx context.Context, userID string) (int64, error)
	findConflictsFn     func(ctx context.Context, vehicleID string, start, end time.Time, statuses []string) ([]*model.Rental, error)
	findConflictingIDFn func(ctx context.Context, start, end time.Time, statuses []string) ([]string, error)
	updateLifecycleFn   func(ctx context.Context, id string, rental *model.Rental, fromStatuses []string) error
}

func (m *mockRentalRepo) Create(ctx context.Context, rental *model.Rental) error {
	return m.createFn(ctx, rental)
}

func (m *mockRentalRepo) FindByID(ctx context.Context, id string) (*model.Rental, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockRentalRepo) FindByReference(ctx context.Context, reference string) (*model.Rental, error) {
	return m.findByReferenceFn(ctx, reference)
}

func (m *mockRentalRepo) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Rental, error) {
	return m.findAllFn(ctx, limit, offset)
}

func (m *mockRentalRepo) Count(ctx context.Context) (int64, error) {
	return m.countFn(ctx)
}

func (m *mockRentalRepo) FindByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.Rental, error) {
	return m.findByUserFn(ctx, userID, limit, offset)
}

func (m *mockRentalRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	return m.countByUserFn(ctx, userID)
}

func (m *mockRentalRepo) FindConflicts(ctx context.Context, vehicleID string, start, end time.Time, statuses []string) ([]*model.Rental, error) {
	return m.findConflictsFn(ctx, vehicleID, start, end, statuses)
}

func (m *mockRentalRepo) FindConflictingVehicleIDs(ctx context.Context, start, end time.Time, statuses []string) ([]string, error) {
	return m.findConflictingIDFn(ctx, start, end, statuses)
}

func (m *mockRentalRepo) UpdateLifecycle(ctx context.Context, id string, rental *model.Rental, fromStatuses []string) error {
	return m.updateLifecycleFn(ctx, id, rental, fromStatuses)
}

func (m *mockRentalRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TxFunc) error {
	return fn(ctx)
}

type mockLockRepo struct {
	createFn        func(ctx context.Context, lock *model.RentalLock) (*model.RentalLock, error)
	deleteFn        func(ctx context.Context, lockID string) error
	deleteExpiredFn func(ctx context.Context, lockID string, now time.Time) error
	deleted         []string
	reaped          []string
}

func (m *mockLockRepo) Create(ctx context.Context, lock *model.RentalLock) (*model.RentalLock, error) {
	return m.createFn(ctx, lock)
}

func (m *mockLockRepo) Delete(ctx context.Context, lockID string) error {
	m.deleted = append(m.deleted, lockID)
	if m.deleteFn != nil {
		return m.deleteFn(ctx, lockID)
	}
	return nil
}

func (m *mockLockRepo) DeleteExpired(ctx context.Context, lockID string, now time.Time) error {
	m.reaped = append(m.reaped, lockID)
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx, lockID, now)
	}
	return nil
}

type mockVehicleRepo struct {
	findByIDFn             func(ctx context.Context, id string) (*model.Vehicle, error)
	updateStatusFn         func(ctx context.Context, id, status string) error
	updateStoreAndStatusFn func(ctx context.Context, id, storeID, status string) error
}

func (m *mockVehicleRepo) Create(context.Context, *model.Vehicle) error { return nil }

func (m *mockVehicleRepo) FindByID(ctx context.Context, id string) (*model.Vehicle, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockVehicleRepo) FindByPlate(context.Context, string) (*model.Vehicle, error) {
	return nil, fleeterrors.ErrNotFound
}

func (m *mockVehicleRepo) FindAll(context.Context, int, int64) ([]*model.Vehicle, error) {
	return nil, nil
}

func (m *mockVehicleRepo) Count(context.Context) (int64, error) { return 0, nil }

func (m *mockVehicleRepo) FindByStore(context.Context, string) ([]*model.Vehicle, error) {
	return nil, nil
}

func (m *mockVehicleRepo) FindByStoreAndStatus(context.Context, string, string) ([]*model.Vehicle, error) {
	return nil, nil
}

func (m *mockVehicleRepo) FindByCategory(context.Context, string) ([]*model.Vehicle, error) {
	return nil, nil
}

func (m *mockVehicleRepo) UpdateStatus(ctx context.Context, id, status string) error {
	return m.updateStatusFn(ctx, id, status)
}

func (m *mockVehicleRepo) UpdateStoreAndStatus(ctx context.Context, id, storeID, status string) error {
	if m.updateStoreAndStatusFn != nil {
		return m.updateStoreAndStatusFn(ctx, id, storeID, status)
	}
	return nil
}

type mockDirectory struct {
	getUserFn  func(ctx context.Context, id string) (*model.User, error)
	getStoreFn func(ctx context.Context, id string) (*model.Store, error)
}

func (m *mockDirectory) GetUser(ctx context.Context, id string) (*model.User, error) {
	return m.getUserFn(ctx, id)
}

func (m *mockDirectory) GetStore(ctx context.Context, id string) (*model.Store, error) {
	return m.getStoreFn(ctx, id)
}

type ledgerEntry struct {
	rentalID string
	amount   decimal.Decimal
	category string
}

type mockLedger struct {
	entries []ledgerEntry
}

func (m *mockLedger) Record(ctx context.Context, rentalID string, amount decimal.Decimal, category string) (string, error) {
	m.entries = append(m.entries, ledgerEntry{rentalID: rentalID, amount: amount, category: category})
	return "entry-id", nil
}

func (m *mockLedger) GetByRental(context.Context, string) ([]*model.Payment, error) {
	return nil, nil
}

type mockPublisher struct {
	published []events.RentalEvent
}

func (m *mockPublisher) Publish(ctx context.Context, event events.RentalEvent) error {
	m.published = append(m.published, event)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

// --- Fixture ---

type fixture struct {
	repo      *mockRentalRepo
	locks     *mockLockRepo
	vehicles  *mockVehicleRepo
	directory *mockDirectory
	ledger    *mockLedger
	publisher *mockPublisher
	service   RentalService
}

func availableVehicle() *model.Vehicle {
	return &model.Vehicle{
		ID:        vehicleID,
		StoreID:   storeID,
		DailyRate: money.MustDecimal128(decimal.NewFromInt(100)),
		Status:    model.VehicleStatusAvailable,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		Log:     logger.New(logger.Config{Output: io.Discard}),
		LockTTL: 10 * time.Second,
	}

	f := &fixture{
		repo: &mockRentalRepo{
			createFn: func(ctx context.Context, rental *model.Rental) error {
				rental.ID = rentalID
				return nil
			},
			findConflictsFn: func(context.Context, string, time.Time, time.Time, []string) ([]*model.Rental, error) {
				return nil, nil
			},
			updateLifecycleFn: func(context.Context, string, *model.Rental, []string) error {
				return nil
			},
		},
		locks: &mockLockRepo{
			createFn: func(ctx context.Context, lock *model.RentalLock) (*model.RentalLock, error) {
				return lock, nil
			},
		},
		vehicles: &mockVehicleRepo{
			findByIDFn: func(context.Context, string) (*model.Vehicle, error) {
				return availableVehicle(), nil
			},
			updateStatusFn: func(context.Context, string, string) error {
				return nil
			},
		},
		directory: &mockDirectory{
			getUserFn: func(ctx context.Context, id string) (*model.User, error) {
				return &model.User{ID: id}, nil
			},
			getStoreFn: func(ctx context.Context, id string) (*model.Store, error) {
				return &model.Store{ID: id}, nil
			},
		},
		ledger:    &mockLedger{},
		publisher: &mockPublisher{},
	}

	f.service = NewRentalService(
		f.repo,
		f.locks,
		f.vehicles,
		f.directory,
		f.ledger,
		f.publisher,
		validator.NewRentalValidator(cfg.Log),
		clock.Fixed(now),
		cfg,
	)
	return f
}

func newRentalRequest() *model.Rental {
	return &model.Rental{
		UserID:        userID,
		VehicleID:     vehicleID,
		PickupStoreID: storeID,
		ReturnStoreID: storeID,
		StartTime:     now.Add(24 * time.Hour),
		EndTime:       now.Add(72 * time.Hour),
	}
}

// --- Create ---

func TestCreateSuccess(t *testing.T) {
	f := newFixture(t)

	var rentedVehicle string
	f.vehicles.updateStatusFn = func(ctx context.Context, id, status string) error {
		if status == model.VehicleStatusRented {
			rentedVehicle = id
		}
		return nil
	}

	rental := newRentalRequest()
	if err := f.service.Create(context.Background(), rental); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	if rental.Status != model.RentalStatusPending {
		t.Errorf("status = %s, want pending", rental.Status)
	}
	if rental.TotalAmount.String() != "200.00" {
		t.Errorf("total = %s, want 200.00 for a two day rental at 100/day", rental.TotalAmount.String())
	}
	if rental.Reference == "" {
		t.Error("reference was not generated")
	}
	if rentedVehicle != vehicleID {
		t.Errorf("vehicle %s was not marked rented", vehicleID)
	}
	if len(f.locks.deleted) != 1 {
		t.Errorf("lock released %d times, want 1", len(f.locks.deleted))
	}

	if len(f.ledger.entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1 deposit", len(f.ledger.entries))
	}
	deposit := f.ledger.entries[0]
	if deposit.category != model.PaymentCategoryDeposit {
		t.Errorf("ledger category = %s, want deposit", deposit.category)
	}
	if !deposit.amount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("deposit = %s, want 300 (three daily rates)", deposit.amount)
	}

	if len(f.publisher.published) != 1 || f.publisher.published[0].Type != events.TypeRentalCreated {
		t.Errorf("expected one rental.created event, got %+v", f.publisher.published)
	}
}

func TestCreateIgnoresClientSuppliedID(t *testing.T) {
	f := newFixture(t)

	var insertedID string
	f.repo.createFn = func(ctx context.Context, rental *model.Rental) error {
		insertedID = rental.ID
		rental.ID = rentalID
		return nil
	}

	rental := newRentalRequest()
	rental.ID = otherID
	rental.Status = model.RentalStatusCompleted
	rental.ActualReturnTime = &now

	if err := f.service.Create(context.Background(), rental); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	if insertedID != "" {
		t.Errorf("client-supplied ID %q reached the insert, want it cleared", insertedID)
	}
	if rental.ID != rentalID {
		t.Errorf("rental.ID = %s, want the generated %s", rental.ID, rentalID)
	}
	if rental.Status != model.RentalStatusPending {
		t.Errorf("status = %s, want pending regardless of the request body", rental.Status)
	}
	if rental.ActualReturnTime != nil {
		t.Error("actual return time should be cleared on create")
	}
}

func TestCreatePartialDayRoundsUp(t *testing.T) {
	f := newFixture(t)

	rental := newRentalRequest()
	rental.EndTime = rental.StartTime.Add(49 * time.Hour)

	if err := f.service.Create(context.Background(), rental); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	if rental.TotalAmount.String() != "300.00" {
		t.Errorf("total = %s, want 300.00 for 49 hours at 100/day", rental.TotalAmount.String())
	}
}

func TestCreateOverlapConflict(t *testing.T) {
	f := newFixture(t)

	existing := newRentalRequest()
	existing.ID = otherID
	existing.Status = model.RentalStatusActive
	f.repo.findConflictsFn = func(context.Context, string, time.Time, time.Time, []string) ([]*model.Rental, error) {
		return []*model.Rental{existing}, nil
	}

	created := false
	f.repo.createFn = func(context.Context, *model.Rental) error {
		created = true
		return nil
	}

	err := f.service.Create(context.Background(), newRentalRequest())
	if !apperrors.IsConflict(err) {
		t.Fatalf("Create() error = %v, want conflict", err)
	}
	if created {
		t.Error("rental was created despite an overlap")
	}
	if len(f.locks.deleted) != 1 {
		t.Error("lock was not released after the conflict")
	}
}

func TestCreateVehicleNotAvailable(t *testing.T) {
	f := newFixture(t)

	f.vehicles.findByIDFn = func(context.Context, string) (*model.Vehicle, error) {
		v := availableVehicle()
		v.Status = model.VehicleStatusMaintenance
		return v, nil
	}

	err := f.service.Create(context.Background(), newRentalRequest())
	if !apperrors.IsConflict(err) {
		t.Fatalf("Create() error = %v, want conflict", err)
	}
}

func TestCreateStatusFlipsBetweenCheckAndLock(t *testing.T) {
	f := newFixture(t)

	// First read sees an available vehicle, the re-check inside the
	// transaction sees it rented.
	calls := 0
	f.vehicles.findByIDFn = func(context.Context, string) (*model.Vehicle, error) {
		calls++
		v := availableVehicle()
		if calls > 1 {
			v.Status = model.VehicleStatusRented
		}
		return v, nil
	}

	err := f.service.Create(context.Background(), newRentalRequest())
	if !apperrors.IsConflict(err) {
		t.Fatalf("Create() error = %v, want conflict from the in-transaction re-check", err)
	}
}

func TestCreateStartInPast(t *testing.T) {
	f := newFixture(t)

	rental := newRentalRequest()
	rental.StartTime = now.Add(-time.Hour)

	err := f.service.Create(context.Background(), rental)
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeValidation {
		t.Fatalf("Create() code = %s, want %s", appErr.Code, apperrors.CodeValidation)
	}
}

func TestCreateUserNotFound(t *testing.T) {
	f := newFixture(t)

	f.directory.getUserFn = func(context.Context, string) (*model.User, error) {
		return nil, directoryrepo.ErrUserNotFound
	}

	err := f.service.Create(context.Background(), newRentalRequest())
	if !apperrors.IsNotFound(err) {
		t.Fatalf("Create() error = %v, want not found", err)
	}
}

func TestCreateLockContention(t *testing.T) {
	f := newFixture(t)

	f.locks.createFn = func(context.Context, *model.RentalLock) (*model.RentalLock, error) {
		return nil, duplicateKeyErr()
	}

	created := false
	f.repo.createFn = func(context.Context, *model.Rental) error {
		created = true
		return nil
	}

	err := f.service.Create(context.Background(), newRentalRequest())
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeConflict {
		t.Fatalf("Create() code = %s, want %s", appErr.Code, apperrors.CodeConflict)
	}
	if retryable, _ := appErr.Details["retryable"].(bool); !retryable {
		t.Error("lock contention conflict should be marked retryable")
	}
	if created {
		t.Error("rental was created despite losing the lock")
	}
}

func TestCreateReapsExpiredLock(t *testing.T) {
	f := newFixture(t)

	// The first insert collides with a lock whose TTL has elapsed but whose
	// document the TTL monitor has not removed yet. After the reap the retry
	// insert succeeds.
	attempts := 0
	f.locks.createFn = func(ctx context.Context, lock *model.RentalLock) (*model.RentalLock, error) {
		attempts++
		if attempts == 1 {
			return nil, duplicateKeyErr()
		}
		return lock, nil
	}

	if err := f.service.Create(context.Background(), newRentalRequest()); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("lock insert attempted %d times, want 2", attempts)
	}
	wantLockID := "vehicle_lock_" + vehicleID
	if len(f.locks.reaped) != 1 || f.locks.reaped[0] != wantLockID {
		t.Errorf("expired lock reap = %v, want [%s]", f.locks.reaped, wantLockID)
	}
}

// --- Return ---

func storedRental(status string) *model.Rental {
	r := newRentalRequest()
	r.ID = rentalID
	r.Reference = "RNT-1-ABCD1234"
	r.Status = status
	r.TotalAmount = money.MustDecimal128(decimal.NewFromInt(200))
	return r
}

func TestReturnOnTime(t *testing.T) {
	f := newFixture(t)

	active := storedRental(model.RentalStatusActive)
	active.EndTime = now.Add(time.Hour)
	f.repo.findByIDFn = func(context.Context, string) (*model.Rental, error) {
		return active, nil
	}

	var updated *model.Rental
	var guard []string
	f.repo.updateLifecycleFn = func(ctx context.Context, id string, rental *model.Rental, fromStatuses []string) error {
		updated = rental
		guard = fromStatuses
		return nil
	}

	var vehicleStatus string
	f.vehicles.updateStatusFn = func(ctx context.Context, id, status string) error {
		vehicleStatus = status
		return nil
	}

	rental, err := f.service.Return(context.Background(), rentalID, storeID)
	if err != nil {
		t.Fatalf("Return() unexpected error: %v", err)
	}

	if rental.Status != model.RentalStatusCompleted {
		t.Errorf("status = %s, want completed", rental.Status)
	}
	if rental.TotalAmount.String() != "200.00" {
		t.Errorf("total = %s, want unchanged 200.00", rental.TotalAmount.String())
	}
	if updated == nil || updated.ActualReturnTime == nil || !updated.ActualReturnTime.Equal(now) {
		t.Error("actual return time was not persisted")
	}
	if vehicleStatus != model.VehicleStatusAvailable {
		t.Errorf("vehicle status = %s, want available", vehicleStatus)
	}
	if len(guard) != 2 {
		t.Errorf("lifecycle write guarded by statuses %v, want pending and active", guard)
	}

	if len(f.ledger.entries) != 1 || f.ledger.entries[0].category != model.PaymentCategoryFinal {
		t.Errorf("expected a single final ledger entry, got %+v", f.ledger.entries)
	}
}

func TestReturnOverdue(t *testing.T) {
	f := newFixture(t)

	active := storedRental(model.RentalStatusActive)
	active.EndTime = now.Add(-48 * time.Hour)
	f.repo.findByIDFn = func(context.Context, string) (*model.Rental, error) {
		return active, nil
	}

	rental, err := f.service.Return(context.Background(), rentalID, storeID)
	if err != nil {
		t.Fatalf("Return() unexpected error: %v", err)
	}

	// Two overdue days at 100/day x 1.5 = 300, on top of the 200 base.
	if rental.TotalAmount.String() != "500.00" {
		t.Errorf("total = %s, want 500.00", rental.TotalAmount.String())
	}

	if len(f.ledger.entries) != 2 {
		t.Fatalf("ledger entries = %d, want final + penalty", len(f.ledger.entries))
	}
	penalty := f.ledger.entries[1]
	if penalty.category != model.PaymentCategoryPenalty {
		t.Errorf("second entry category = %s, want penalty", penalty.category)
	}
	if !penalty.amount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("penalty = %s, want 300", penalty.amount)
	}
}

func TestReturnOneWayRelocatesVehicle(t *testing.T) {
	f := newFixture(t)

	active := storedRental(model.RentalStatusActive)
	active.EndTime = now.Add(time.Hour)
	f.repo.findByIDFn = func(context.Context, string) (*model.Rental, error) {
		return active, nil
	}

	var relocatedTo string
	f.vehicles.updateStoreAndStatusFn = func(ctx context.Context, id, storeID, status string) error {
		if status == model.VehicleStatusAvailable {
			relocatedTo = storeID
		}
		return nil
	}
	f.vehicles.updateStatusFn = func(context.Context, string, string) error {
		t.Error("UpdateStatus called for a one-way return, want UpdateStoreAndStatus")
		return nil
	}

	if _, err := f.service.Return(context.Background(), rentalID, otherID); err != nil {
		t.Fatalf("Return() unexpected error: %v", err)
	}
	if relocatedTo != otherID {
		t.Errorf("vehicle relocated to %s, want %s", relocatedTo, otherID)
	}
}

func TestReturnTerminalRental(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFn = func(context.Context, string) (*model.Rental, error) {
		return storedRental(model.RentalStatusCancelled), nil
	}

	_, err := f.service.Return(context.Background(), rentalID, storeID)
	if !apperrors.IsConflict(err) {
		t.Fatalf("Return() error = %v, want conflict", err)
	}
}

func TestReturnLosesStatusRace(t *testing.T) {
	f := newFixture(t)

	// The rental reads as active, but another request transitions it before
	// our guarded write lands. Nothing else may happen: no vehicle update,
	// no ledger entries, no event.
	active := storedRental(model.RentalStatusActive)
	active.EndTime = now.Add(time.Hour)
	f.repo.findByIDFn = func(context.Context, string) (*model.Rental, error) {
		return active, nil
	}
	f.repo.updateLifecycleFn = func(context.Context, string, *model.Rental, []string) error {
		return rentalserrors.ErrStatusChanged
	}
	f.vehicles.updateStatusFn = func(ctx context.Context, id, status string) error {
		t.Errorf("vehicle status changed to %s after a lost lifecycle race", status)
		return nil
	}

	_, err := f.service.Return(context.Background(), rentalID, storeID)
	if !apperrors.IsConflict(err) {
		t.Fatalf("Return() error = %v, want conflict", err)
	}
	if len(f.ledger.entries) != 0 {
		t.Errorf("ledger entries = %+v, want none after a lost race", f.ledger.entries)
	}
	if len(f.publisher.published) != 0 {
		t.Errorf("events = %+v, want none after a lost race", f.publisher.published)
	}
}

// --- Cancel ---

func TestCancel(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFn = func(context.Context, string) (*model.Rental, error) {
		return storedRental(model.RentalStatusPending), nil
	}

	var updated *model.Rental
	f.repo.updateLifecycleFn = func(ctx context.Context, id string, rental *model.Rental, fromStatuses []string) error {
		updated = rental
		return nil
	}

	var vehicleStatus string
	f.vehicles.updateStatusFn = func(ctx context.Context, id, status string) error {
		vehicleStatus = status
		return nil
	}

	if err := f.service.Cancel(context.Background(), rentalID); err != nil {
		t.Fatalf("Cancel() unexpected error: %v", err)
	}
	if updated == nil || updated.Status != model.RentalStatusCancelled {
		t.Error("rental was not marked cancelled")
	}
	if vehicleStatus != model.VehicleStatusAvailable {
		t.Errorf("vehicle status = %s, want available after cancel", vehicleStatus)
	}
	if len(f.publisher.published) != 1 || f.publisher.published[0].Type != events.TypeRentalCancelled {
		t.Errorf("expected one rental.cancelled event, got %+v", f.publisher.published)
	}
}

func TestCancelLosesStatusRace(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFn = func(context.Context, string) (*model.Rental, error) {
		return storedRental(model.RentalStatusActive), nil
	}
	f.repo.updateLifecycleFn = func(context.Context, string, *model.Rental, []string) error {
		return rentalserrors.ErrStatusChanged
	}
	f.vehicles.updateStatusFn = func(ctx context.Context, id, status string) error {
		t.Errorf("vehicle status changed to %s after a lost lifecycle race", status)
		return nil
	}

	err := f.service.Cancel(context.Background(), rentalID)
	if !apperrors.IsConflict(err) {
		t.Fatalf("Cancel() error = %v, want conflict", err)
	}
	if len(f.publisher.published) != 0 {
		t.Errorf("events = %+v, want none after a lost race", f.publisher.published)
	}
}

func TestCancelTwice(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFn = func(context.Context, string) (*model.Rental, error) {
		return storedRental(model.RentalStatusCancelled), nil
	}

	err := f.service.Cancel(context.Background(), rentalID)
	if !apperrors.IsConflict(err) {
		t.Fatalf("second Cancel() error = %v, want conflict", err)
	}
}

// --- Activate ---

func TestActivate(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFn = func(context.Context, string) (*model.Rental, error) {
		return storedRental(model.RentalStatusPending), nil
	}

	rental, err := f.service.Activate(context.Background(), rentalID)
	if err != nil {
		t.Fatalf("Activate() unexpected error: %v", err)
	}
	if rental.Status != model.RentalStatusActive {
		t.Errorf("status = %s, want active", rental.Status)
	}
}

func TestActivateNonPending(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFn = func(context.Context, string) (*model.Rental, error) {
		return storedRental(model.RentalStatusActive), nil
	}

	_, err := f.service.Activate(context.Background(), rentalID)
	if !apperrors.IsConflict(err) {
		t.Fatalf("Activate() error = %v, want conflict", err)
	}
}

// --- GetByID ---

func TestGetByIDNotFound(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFn = func(context.Context, string) (*model.Rental, error) {
		return nil, rentalserrors.ErrNotFound
	}

	_, err := f.service.GetByID(context.Background(), rentalID)
	if !apperrors.IsNotFound(err) {
		t.Fatalf("GetByID() error = %v, want not found", err)
	}
}

// --- helpers ---

func duplicateKeyErr() error {
	return mongodriver.WriteException{
		WriteErrors: mongodriver.WriteErrors{
			{Code: 11000},
		},
	}
}
