package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Rental statuses. Pending and Active both hold the vehicle for conflict
// purposes; Completed and Cancelled are terminal and never block.
const (
	RentalStatusPending   = "pending"
	RentalStatusActive    = "active"
	RentalStatusCompleted = "completed"
	RentalStatusCancelled = "cancelled"
)

// BlockingRentalStatuses are the statuses considered by conflict checks.
func BlockingRentalStatuses() []string {
	return []string{RentalStatusPending, RentalStatusActive}
}

type Rental struct {
	ID               string               `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Reference        string               `json:"reference,omitempty" bson:"reference,omitempty"`
	UserID           string               `json:"user_id" bson:"user_id" validate:"required,mongodb"`
	VehicleID        string               `json:"vehicle_id" bson:"vehicle_id" validate:"required,mongodb"`
	PickupStoreID    string               `json:"pickup_store_id" bson:"pickup_store_id" validate:"required,mongodb"`
	ReturnStoreID    string               `json:"return_store_id" bson:"return_store_id" validate:"required,mongodb"`
	StartTime        time.Time            `json:"start_time" bson:"start_time" validate:"required"`
	EndTime          time.Time            `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	ActualReturnTime *time.Time           `json:"actual_return_time,omitempty" bson:"actual_return_time,omitempty"`
	TotalAmount      primitive.Decimal128 `json:"total_amount" bson:"total_amount"`
	Status           string               `json:"status" bson:"status" validate:"omitempty,oneof=pending active completed cancelled"`
	CreatedAt        time.Time            `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// IsTerminal reports whether the rental can no longer transition.
func (r *Rental) IsTerminal() bool {
	return r.Status == RentalStatusCompleted || r.Status == RentalStatusCancelled
}
