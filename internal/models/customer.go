package models

import (
	"time"

	"cobrapyme/morosidad/internal/utils"
)

// Customer is a counterparty that invoices are issued to.
// RUT, when present, is stored in canonical punctuated form (DD.DDD.DDD-X)
// and together with the owner forms the import reconciliation key.
type Customer struct {
	Base      `bson:",inline"`
	OwnerID   utils.SixID `bson:"owner_id" json:"owner_id"`
	Name      string      `bson:"name" json:"name"`
	RUT       string      `bson:"rut,omitempty" json:"rut,omitempty"`
	Email     string      `bson:"email" json:"email"`
	Phone     string      `bson:"phone,omitempty" json:"phone,omitempty"`
	Notes     string      `bson:"notes,omitempty" json:"notes,omitempty"`
	Active    bool        `bson:"active" json:"active"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
}
