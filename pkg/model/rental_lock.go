package model

import "time"

// RentalLock is an advisory lock document keyed by vehicle. Creation relies
// on the unique _id index: the loser of a concurrent insert gets a duplicate
// key error. ExpiresAt is cleaned up by a TTL index so crashed holders do not
// wedge the vehicle.
type RentalLock struct {
	ID        string    `bson:"_id"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}
