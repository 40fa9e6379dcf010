package service

import (
	"context"
	"io"
	"testing"
	"time"

	fleeterrors "rentro/internal/fleet/errors"
	"rentro/pkg/clock"
	"rentro/pkg/config"
	apperrors "rentro/pkg/errors"
	"rentro/pkg/logger"
	"rentro/pkg/model"
	"rentro/pkg/money"

	"github.com/shopspring/decimal"
)

var (
	now     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	storeID = "507f1f77bcf86cd799439013"
)

type mockVehicleRepo struct {
	createFn               func(ctx context.Context, vehicle *model.Vehicle) error
	findByIDFn             func(ctx context.Context, id string) (*model.Vehicle, error)
	findByStoreAndStatusFn func(ctx context.Context, storeID, status string) ([]*model.Vehicle, error)
	updateStatusFn         func(ctx context.Context, id, status string) error
}

func (m *mockVehicleRepo) Create(ctx context.Context, vehicle *model.Vehicle) error {
	return m.createFn(ctx, vehicle)
}

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

func (m *mockVehicleRepo) FindByStoreAndStatus(ctx context.Context, storeID, status string) ([]*model.Vehicle, error) {
	return m.findByStoreAndStatusFn(ctx, storeID, status)
}

func (m *mockVehicleRepo) FindByCategory(context.Context, string) ([]*model.Vehicle, error) {
	return nil, nil
}

func (m *mockVehicleRepo) UpdateStatus(ctx context.Context, id, status string) error {
	return m.updateStatusFn(ctx, id, status)
}

func (m *mockVehicleRepo) UpdateStoreAndStatus(context.Context, string, string, string) error {
	return nil
}

type mockConflictIndex struct {
	ids []string
}

func (m *mockConflictIndex) FindConflictingVehicleIDs(context.Context, time.Time, time.Time, []string) ([]string, error) {
	return m.ids, nil
}

func fleetVehicle(id string) *model.Vehicle {
	return &model.Vehicle{
		ID:          id,
		PlateNumber: "XY-" + id[len(id)-4:],
		StoreID:     storeID,
		DailyRate:   money.MustDecimal128(decimal.NewFromInt(100)),
		Status:      model.VehicleStatusAvailable,
	}
}

func newService(repo *mockVehicleRepo, conflicts *mockConflictIndex) VehicleService {
	cfg := &config.Config{Log: logger.New(logger.Config{Output: io.Discard})}
	return NewVehicleService(repo, conflicts, clock.Fixed(now), cfg)
}

func TestSearchAvailableExcludesConflicting(t *testing.T) {
	free := fleetVehicle("507f1f77bcf86cd799439021")
	busy := fleetVehicle("507f1f77bcf86cd799439022")

	repo := &mockVehicleRepo{
		findByStoreAndStatusFn: func(ctx context.Context, gotStore, gotStatus string) ([]*model.Vehicle, error) {
			if gotStore != storeID {
				t.Errorf("queried store %s, want %s", gotStore, storeID)
			}
			if gotStatus != model.VehicleStatusAvailable {
				t.Errorf("queried status %s, want available", gotStatus)
			}
			return []*model.Vehicle{free, busy}, nil
		},
	}
	conflicts := &mockConflictIndex{ids: []string{busy.ID}}

	svc := newService(repo, conflicts)
	got, err := svc.SearchAvailable(context.Background(), storeID, now.Add(24*time.Hour), now.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("SearchAvailable() unexpected error: %v", err)
	}

	if len(got) != 1 || got[0].ID != free.ID {
		t.Errorf("SearchAvailable() = %v, want only %s", got, free.ID)
	}
}

func TestSearchAvailableEmptyStore(t *testing.T) {
	repo := &mockVehicleRepo{
		findByStoreAndStatusFn: func(context.Context, string, string) ([]*model.Vehicle, error) {
			return nil, nil
		},
	}

	svc := newService(repo, &mockConflictIndex{})
	got, err := svc.SearchAvailable(context.Background(), storeID, now.Add(time.Hour), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("SearchAvailable() unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("SearchAvailable() = %v, want empty", got)
	}
}

func TestSearchAvailableInvalidWindow(t *testing.T) {
	svc := newService(&mockVehicleRepo{}, &mockConflictIndex{})

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
	}{
		{name: "end before start", start: now.Add(48 * time.Hour), end: now.Add(24 * time.Hour)},
		{name: "end equals start", start: now.Add(24 * time.Hour), end: now.Add(24 * time.Hour)},
		{name: "start in the past", start: now.Add(-time.Hour), end: now.Add(24 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SearchAvailable(context.Background(), storeID, tt.start, tt.end)
			appErr := apperrors.AsAppError(err)
			if appErr.Code != apperrors.CodeInvalidInput {
				t.Errorf("SearchAvailable() code = %s, want %s", appErr.Code, apperrors.CodeInvalidInput)
			}
		})
	}
}

func TestAddDefaultsToAvailable(t *testing.T) {
	repo := &mockVehicleRepo{
		createFn: func(ctx context.Context, vehicle *model.Vehicle) error {
			vehicle.ID = "507f1f77bcf86cd799439021"
			return nil
		},
	}

	svc := newService(repo, &mockConflictIndex{})
	vehicle := fleetVehicle("507f1f77bcf86cd799439021")
	vehicle.ID = ""
	vehicle.Status = ""

	if err := svc.Add(context.Background(), vehicle); err != nil {
		t.Fatalf("Add() unexpected error: %v", err)
	}
	if vehicle.Status != model.VehicleStatusAvailable {
		t.Errorf("status = %s, want available by default", vehicle.Status)
	}
}

func TestAddDuplicatePlate(t *testing.T) {
	repo := &mockVehicleRepo{
		createFn: func(context.Context, *model.Vehicle) error {
			return fleeterrors.ErrDuplicatePlate
		},
	}

	svc := newService(repo, &mockConflictIndex{})
	err := svc.Add(context.Background(), fleetVehicle("507f1f77bcf86cd799439021"))
	if !apperrors.IsConflict(err) {
		t.Fatalf("Add() error = %v, want conflict", err)
	}
}

func TestSetStatus(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		target   string
		wantCode string
	}{
		{
			name:    "available to maintenance",
			current: model.VehicleStatusAvailable,
			target:  model.VehicleStatusMaintenance,
		},
		{
			name:    "maintenance back to available",
			current: model.VehicleStatusMaintenance,
			target:  model.VehicleStatusAvailable,
		},
		{
			name:     "rented vehicle is off limits",
			current:  model.VehicleStatusRented,
			target:   model.VehicleStatusMaintenance,
			wantCode: apperrors.CodeConflict,
		},
		{
			name:     "maintenance to transfer needs a stop at available",
			current:  model.VehicleStatusMaintenance,
			target:   model.VehicleStatusTransfer,
			wantCode: apperrors.CodeConflict,
		},
		{
			name:     "rented cannot be set directly",
			current:  model.VehicleStatusAvailable,
			target:   model.VehicleStatusRented,
			wantCode: apperrors.CodeInvalidInput,
		},
		{
			name:     "unknown status",
			current:  model.VehicleStatusAvailable,
			target:   "scrapped",
			wantCode: apperrors.CodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vehicle := fleetVehicle("507f1f77bcf86cd799439021")
			vehicle.Status = tt.current

			updated := ""
			repo := &mockVehicleRepo{
				findByIDFn: func(context.Context, string) (*model.Vehicle, error) {
					return vehicle, nil
				},
				updateStatusFn: func(ctx context.Context, id, status string) error {
					updated = status
					return nil
				},
			}

			svc := newService(repo, &mockConflictIndex{})
			err := svc.SetStatus(context.Background(), vehicle.ID, tt.target)

			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("SetStatus() unexpected error: %v", err)
				}
				if updated != tt.target {
					t.Errorf("persisted status = %s, want %s", updated, tt.target)
				}
				return
			}

			appErr := apperrors.AsAppError(err)
			if appErr.Code != tt.wantCode {
				t.Errorf("SetStatus() code = %s, want %s", appErr.Code, tt.wantCode)
			}
			if updated != "" {
				t.Errorf("status was persisted (%s) despite the error", updated)
			}
		})
	}
}
