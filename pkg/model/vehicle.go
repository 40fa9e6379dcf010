package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Vehicle statuses. Only an available vehicle can be allocated; the engine
// flips the status to rented for the lifetime of the holding rental.
const (
	VehicleStatusAvailable   = "available"
	VehicleStatusRented      = "rented"
	VehicleStatusMaintenance = "maintenance"
	VehicleStatusTransfer    = "transfer"
)

// VehicleStatuses lists every valid vehicle status.
func VehicleStatuses() []string {
	return []string{
		VehicleStatusAvailable,
		VehicleStatusRented,
		VehicleStatusMaintenance,
		VehicleStatusTransfer,
	}
}

type Vehicle struct {
	ID          string               `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	PlateNumber string               `json:"plate_number" bson:"plate_number" validate:"required,min=2,max=16"`
	Model       string               `json:"model" bson:"model" validate:"required,min=1,max=100"`
	CategoryID  string               `json:"category_id" bson:"category_id" validate:"required,mongodb"`
	StoreID     string               `json:"store_id" bson:"store_id" validate:"required,mongodb"`
	DailyRate   primitive.Decimal128 `json:"daily_rate" bson:"daily_rate"`
	Status      string               `json:"status" bson:"status" validate:"omitempty,oneof=available rented maintenance transfer"`
	CreatedAt   time.Time            `json:"created_at" bson:"created_at" validate:"omitempty"`
}
