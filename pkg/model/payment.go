package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payment categories. A category is immutable once written.
const (
	PaymentCategoryDeposit = "deposit"
	PaymentCategoryFinal   = "final"
	PaymentCategoryPenalty = "penalty"
)

// Payment is a ledger entry tied to a rental. Entries are bookkeeping, not
// settlement: they record that an amount became due, never that it cleared.
type Payment struct {
	ID        string               `json:"id,omitempty" bson:"_id,omitempty"`
	RentalID  string               `json:"rental_id" bson:"rental_id"`
	Amount    primitive.Decimal128 `json:"amount" bson:"amount"`
	Category  string               `json:"category" bson:"category"`
	PaidAt    time.Time            `json:"paid_at" bson:"paid_at"`
	CreatedAt time.Time            `json:"created_at" bson:"created_at"`
}
