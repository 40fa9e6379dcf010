package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	fleeterrors "rentro/internal/fleet/errors"
	"rentro/internal/fleet/repository"
	"rentro/pkg/clock"
	"rentro/pkg/config"
	apperrors "rentro/pkg/errors"
	"rentro/pkg/model"
)

// ConflictIndex answers which vehicles have an overlapping rental in any of
// the given statuses. The rentals repository satisfies it, so availability
// search and rental creation share one overlap predicate.
type ConflictIndex interface {
	FindConflictingVehicleIDs(ctx context.Context, start, end time.Time, statuses []string) ([]string, error)
}

type VehicleService interface {
	Add(ctx context.Context, vehicle *model.Vehicle) error
	GetByID(ctx context.Context, id string) (*model.Vehicle, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Vehicle, int64, error)
	GetByStore(ctx context.Context, storeID string) ([]*model.Vehicle, error)
	GetByCategory(ctx context.Context, categoryID string) ([]*model.Vehicle, error)
	SetStatus(ctx context.Context, id, status string) error
	SearchAvailable(ctx context.Context, storeID string, start, end time.Time) ([]*model.Vehicle, error)
}

type vehicleService struct {
	repo      repository.VehicleRepository
	conflicts ConflictIndex
	clock     clock.Clock
	cfg       *config.Config
}

func NewVehicleService(repo repository.VehicleRepository, conflicts ConflictIndex, clk clock.Clock, cfg *config.Config) VehicleService {
	return &vehicleService{
		repo:      repo,
		conflicts: conflicts,
		clock:     clk,
		cfg:       cfg,
	}
}

func (s *vehicleService) Add(ctx context.Context, vehicle *model.Vehicle) error {
	if vehicle.PlateNumber == "" {
		return apperrors.InvalidInput("Plate number cannot be empty")
	}
	if vehicle.StoreID == "" {
		return apperrors.InvalidInput("Store ID cannot be empty")
	}

	if vehicle.Status == "" {
		vehicle.Status = model.VehicleStatusAvailable
	}
	if !slices.Contains(model.VehicleStatuses(), vehicle.Status) {
		return apperrors.InvalidInput(fmt.Sprintf("Unknown vehicle status: %s", vehicle.Status))
	}

	if err := s.repo.Create(ctx, vehicle); err != nil {
		if errors.Is(err, fleeterrors.ErrDuplicatePlate) {
			return apperrors.Conflict(fmt.Sprintf("A vehicle with plate %s already exists", vehicle.PlateNumber))
		}
		return apperrors.Internal("Failed to create vehicle", err)
	}

	s.cfg.Log.Info("Vehicle registered", "id", vehicle.ID, "plate_number", vehicle.PlateNumber, "store_id", vehicle.StoreID)
	return nil
}

func (s *vehicleService) GetByID(ctx context.Context, id string) (*model.Vehicle, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Vehicle ID cannot be empty")
	}

	vehicle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapErr(err, id)
	}
	return vehicle, nil
}

func (s *vehicleService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Vehicle, int64, error) {
	var count int64
	var vehicles []*model.Vehicle
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count vehicles", "error", errCount)
			errCount = apperrors.Internal("Failed to count vehicles", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		vehicles, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list vehicles", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve vehicles", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return vehicles, count, nil
}

func (s *vehicleService) GetByStore(ctx context.Context, storeID string) ([]*model.Vehicle, error) {
	if storeID == "" {
		return nil, apperrors.InvalidInput("Store ID cannot be empty")
	}

	vehicles, err := s.repo.FindByStore(ctx, storeID)
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve vehicles", err)
	}
	return vehicles, nil
}

func (s *vehicleService) GetByCategory(ctx context.Context, categoryID string) ([]*model.Vehicle, error) {
	if categoryID == "" {
		return nil, apperrors.InvalidInput("Category ID cannot be empty")
	}

	vehicles, err := s.repo.FindByCategory(ctx, categoryID)
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve vehicles", err)
	}
	return vehicles, nil
}

// SetStatus moves a vehicle to maintenance or transfer by hand. Only an
// available vehicle may leave service this way: rented vehicles are owned by
// the allocation engine and change status through the rental lifecycle.
func (s *vehicleService) SetStatus(ctx context.Context, id, status string) error {
	if !slices.Contains(model.VehicleStatuses(), status) {
		return apperrors.InvalidInput(fmt.Sprintf("Unknown vehicle status: %s", status))
	}
	if status == model.VehicleStatusRented {
		return apperrors.InvalidInput("Vehicle status cannot be set to rented directly")
	}

	vehicle, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if vehicle.Status == status {
		return nil
	}
	if vehicle.Status != model.VehicleStatusAvailable && status != model.VehicleStatusAvailable {
		return apperrors.Conflict(fmt.Sprintf("Vehicle cannot move from %s to %s", vehicle.Status, status))
	}
	if vehicle.Status == model.VehicleStatusRented {
		return apperrors.Conflict("Vehicle is currently rented")
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return s.mapErr(err, id)
	}

	s.cfg.Log.Info("Vehicle status changed", "id", id, "from", vehicle.Status, "to", status)
	return nil
}

// SearchAvailable lists vehicles at a store that can take a rental over
// [start, end). A vehicle qualifies when its status is available and no
// pending or active rental overlaps the window.
func (s *vehicleService) SearchAvailable(ctx context.Context, storeID string, start, end time.Time) ([]*model.Vehicle, error) {
	if storeID == "" {
		return nil, apperrors.InvalidInput("Store ID cannot be empty")
	}
	if !end.After(start) {
		return nil, apperrors.InvalidInput("End time must be after start time")
	}
	if start.Before(s.clock.Now()) {
		return nil, apperrors.InvalidInput("Start time cannot be in the past")
	}

	candidates, err := s.repo.FindByStoreAndStatus(ctx, storeID, model.VehicleStatusAvailable)
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve vehicles", err)
	}
	if len(candidates) == 0 {
		return []*model.Vehicle{}, nil
	}

	conflicting, err := s.conflicts.FindConflictingVehicleIDs(ctx, start, end, model.BlockingRentalStatuses())
	if err != nil {
		return nil, apperrors.Internal("Failed to check rental conflicts", err)
	}

	blocked := make(map[string]struct{}, len(conflicting))
	for _, id := range conflicting {
		blocked[id] = struct{}{}
	}

	available := make([]*model.Vehicle, 0, len(candidates))
	for _, vehicle := range candidates {
		if _, ok := blocked[vehicle.ID]; ok {
			continue
		}
		available = append(available, vehicle)
	}

	return available, nil
}

func (s *vehicleService) mapErr(err error, id string) error {
	if errors.Is(err, fleeterrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Vehicle", id)
	}
	if errors.Is(err, fleeterrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid vehicle ID format")
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Internal("Failed to retrieve vehicle", err)
}
