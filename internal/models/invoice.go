package models

import (
	"time"

	"cobrapyme/morosidad/internal/utils"
)

// InvoiceStatus is the primary lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusVoid    InvoiceStatus = "void"
)

// Bucket is the derived collections-risk classification of a pending invoice.
// It is never authored directly: it is recomputed from (today, due date,
// status) on read, on write and by the periodic sweep.
type Bucket string

const (
	BucketCurrent       Bucket = "current"
	BucketDueSoon       Bucket = "due_soon"
	BucketOverdue       Bucket = "overdue"
	BucketDelinquent    Bucket = "delinquent"
	BucketUncollectible Bucket = "uncollectible"
)

// SII document type codes carried on imported invoices.
const (
	DTETypeInvoice       = 33 // factura electrónica
	DTETypeExemptInvoice = 34 // factura exenta
	DTETypeDebitNote     = 56 // nota de débito (skipped on import)
	DTETypeCreditNote    = 61 // nota de crédito (netted, never stored)
)

// Invoice is an outstanding receivable. Number is unique within the owner's
// scope and is the natural key import reconciliation matches on.
type Invoice struct {
	Base        `bson:",inline"`
	OwnerID     utils.SixID   `bson:"owner_id" json:"owner_id"`
	CustomerID  utils.SixID   `bson:"customer_id" json:"customer_id"`
	Number      string        `bson:"number" json:"number"`
	Currency    string        `bson:"currency" json:"currency"`
	IssueDate   time.Time     `bson:"issue_date" json:"issue_date"`
	DueDate     time.Time     `bson:"due_date" json:"due_date"`
	PaymentDate *time.Time    `bson:"payment_date,omitempty" json:"payment_date,omitempty"`
	Status      InvoiceStatus `bson:"status" json:"status"`
	// Bucket is nil unless Status is pending.
	Bucket          *Bucket   `bson:"bucket,omitempty" json:"bucket,omitempty"`
	Net             float64   `bson:"net" json:"net"`
	Tax             float64   `bson:"tax" json:"tax"`
	Exempt          float64   `bson:"exempt" json:"exempt"`
	Total           float64   `bson:"total" json:"total"`
	AmountPaid      float64   `bson:"amount_paid" json:"amount_paid"`
	AmountRemaining float64   `bson:"amount_remaining" json:"amount_remaining"`
	Description     string    `bson:"description,omitempty" json:"description,omitempty"`
	DTEType         int       `bson:"dte_type,omitempty" json:"dte_type,omitempty"`
	SIIImported     bool      `bson:"sii_imported" json:"sii_imported"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
}

// DaysOverdue returns how many days past due the invoice is at the given
// date, or 0 for anything not pending or not yet due.
func (i *Invoice) DaysOverdue(today time.Time) int {
	if i.Status != InvoiceStatusPending {
		return 0
	}
	days := DaysBetween(i.DueDate, today)
	if days < 0 {
		return 0
	}
	return days
}

// Outstanding returns the collectible amount: the remaining balance when one
// is recorded, otherwise the full total. Imported legacy records may carry a
// zero remaining-amount field even though nothing has been paid.
func (i *Invoice) Outstanding() float64 {
	if i.AmountRemaining > 0 {
		return i.AmountRemaining
	}
	return i.Total
}

// DaysBetween returns the whole calendar days from a to b, ignoring the
// time-of-day and timezone components of both.
func DaysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}
