package model

import "time"

// Store is a rental branch. Vehicles belong to exactly one store at a time;
// a one-way return moves the vehicle to the return store.
type Store struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name      string    `json:"name" bson:"name" validate:"required,min=2,max=100"`
	City      string    `json:"city" bson:"city" validate:"required,min=2,max=64"`
	Address   string    `json:"address" bson:"address" validate:"omitempty,max=200"`
	Phone     string    `json:"phone" bson:"phone" validate:"omitempty,e164"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

type User struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name      string    `json:"name" bson:"name" validate:"required,min=1,max=100"`
	Phone     string    `json:"phone" bson:"phone" validate:"omitempty,e164"`
	Role      string    `json:"role" bson:"role" validate:"omitempty,oneof=customer admin"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}
