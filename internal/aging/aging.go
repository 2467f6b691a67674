// Package aging derives the collections-risk bucket of an invoice from its
// due date. The classification is a pure function of (today, due date,
// status): callers always inject today so that bucket boundaries are
// deterministic under test, and the result is persisted only as a cache that
// the sweep refreshes.
package aging

import (
	"time"

	"cobrapyme/morosidad/internal/models"
)

// Thresholds, in days overdue. 30 and 90 belong to the higher-severity
// bucket; 7 days-to-due (and due today) is already due_soon.
const (
	UncollectibleDays = 90
	DelinquentDays    = 30
	DueSoonDays       = 7
)

// Classify maps an invoice's dates and lifecycle state to a collections
// bucket. Anything not pending has no bucket.
func Classify(today time.Time, dueDate time.Time, status models.InvoiceStatus) *models.Bucket {
	if status != models.InvoiceStatusPending {
		return nil
	}

	daysOverdue := models.DaysBetween(dueDate, today)

	var bucket models.Bucket
	switch {
	case daysOverdue >= UncollectibleDays:
		bucket = models.BucketUncollectible
	case daysOverdue >= DelinquentDays:
		bucket = models.BucketDelinquent
	case daysOverdue > 0:
		bucket = models.BucketOverdue
	case -daysOverdue <= DueSoonDays:
		bucket = models.BucketDueSoon
	default:
		bucket = models.BucketCurrent
	}
	return &bucket
}
