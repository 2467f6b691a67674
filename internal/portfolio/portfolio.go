// Package portfolio reduces an owner's invoice collection to the dashboard
// summary: bucket distribution, totals, an aging breakdown and alert
// conditions. It is a pure read-side reducer computed fresh on every request;
// there is no cached materialized view to maintain.
package portfolio

import (
	"fmt"
	"sort"
	"time"

	"cobrapyme/morosidad/internal/aging"
	"cobrapyme/morosidad/internal/currency"
	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/utils"
)

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert codes.
const (
	AlertConcentration = "concentration_risk"
	AlertOverdueMonth  = "overdue_this_month"
	AlertDueSoon       = "due_soon"
	AlertDelinquent    = "delinquent"
	AlertMissingDue    = "missing_due_date"
	AlertUncollectible = "uncollectible"
)

// Concentration-risk parameters: alert when the top customers hold at least
// the threshold share of total outstanding.
const (
	ConcentrationTopN      = 5
	ConcentrationThreshold = 0.70
)

// BucketStat is the count and monetary sum of one collections bucket.
type BucketStat struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// AgingBands is the days-overdue monetary breakdown of pending invoices.
// The band edges are independent of the bucket thresholds: day 30 sits in
// the first band even though bucket classification already treats it as
// delinquent.
type AgingBands struct {
	Days0To30  float64 `json:"days_0_30"`
	Days31To60 float64 `json:"days_31_60"`
	Days61To90 float64 `json:"days_61_90"`
	Days90Plus float64 `json:"days_90_plus"`
}

// Alert is one triggered alert condition. Filter, when set, names an invoice
// list filter the caller may apply to show the affected invoices.
type Alert struct {
	Code     string  `json:"code"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Filter   string  `json:"filter,omitempty"`
	Count    int     `json:"count,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
}

// Summary is the aggregate view of one owner's portfolio at a point in time.
type Summary struct {
	TotalInvoices    int                          `json:"total_invoices"`
	TotalCustomers   int                          `json:"total_customers"`
	TotalInvoiced    float64                      `json:"total_invoiced"`
	TotalCollected   float64                      `json:"total_collected"`
	TotalOutstanding float64                      `json:"total_outstanding"`
	Buckets          map[models.Bucket]BucketStat `json:"buckets"`
	Bands            AgingBands                   `json:"aging_bands"`
	Alerts           []Alert                      `json:"alerts"`
}

// Aggregate computes the summary for a set of invoices. today must be
// injected by the caller; buckets are re-derived here rather than read from
// the stored records so that a stale sweep cannot skew the dashboard.
// currencyCode is only used to render amounts inside alert messages.
func Aggregate(invoices []models.Invoice, today time.Time, currencyCode string) Summary {
	summary := Summary{
		Buckets: make(map[models.Bucket]BucketStat),
	}

	customers := make(map[utils.SixID]bool)
	outstandingByCustomer := make(map[utils.SixID]float64)

	var overdueThisMonth, missingDue int

	for _, inv := range invoices {
		if inv.Status == models.InvoiceStatusVoid {
			continue
		}
		summary.TotalInvoices++
		customers[inv.CustomerID] = true
		summary.TotalInvoiced += inv.Total
		summary.TotalCollected += inv.AmountPaid

		if inv.Status != models.InvoiceStatusPending {
			continue
		}

		outstanding := inv.Outstanding()
		summary.TotalOutstanding += outstanding
		outstandingByCustomer[inv.CustomerID] += outstanding

		if inv.DueDate.IsZero() {
			missingDue++
			continue
		}

		if bucket := aging.Classify(today, inv.DueDate, inv.Status); bucket != nil {
			stat := summary.Buckets[*bucket]
			stat.Count++
			stat.Amount += outstanding
			summary.Buckets[*bucket] = stat
		}

		daysOverdue := models.DaysBetween(inv.DueDate, today)
		switch {
		case daysOverdue < 0:
			// not yet due, no band
		case daysOverdue <= 30:
			summary.Bands.Days0To30 += outstanding
		case daysOverdue <= 60:
			summary.Bands.Days31To60 += outstanding
		case daysOverdue <= 90:
			summary.Bands.Days61To90 += outstanding
		default:
			summary.Bands.Days90Plus += outstanding
		}

		if daysOverdue > 0 && inv.DueDate.Year() == today.Year() && inv.DueDate.Month() == today.Month() {
			overdueThisMonth++
		}
	}
	summary.TotalCustomers = len(customers)

	summary.Alerts = buildAlerts(&summary, outstandingByCustomer, overdueThisMonth, missingDue, currencyCode)
	return summary
}

func buildAlerts(summary *Summary, outstandingByCustomer map[utils.SixID]float64, overdueThisMonth, missingDue int, currencyCode string) []Alert {
	var alerts []Alert

	// Concentration risk. A zero outstanding total suppresses the alert
	// entirely; there is nothing to concentrate.
	if summary.TotalOutstanding > 0 {
		amounts := make([]float64, 0, len(outstandingByCustomer))
		for _, amount := range outstandingByCustomer {
			amounts = append(amounts, amount)
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(amounts)))

		topSum := 0.0
		topCount := ConcentrationTopN
		if len(amounts) < topCount {
			topCount = len(amounts)
		}
		for _, amount := range amounts[:topCount] {
			topSum += amount
		}

		if share := topSum / summary.TotalOutstanding; share >= ConcentrationThreshold {
			alerts = append(alerts, Alert{
				Code:     AlertConcentration,
				Severity: SeverityWarning,
				Message: fmt.Sprintf("Los %d principales clientes concentran el %.0f%% del monto pendiente (%s)",
					topCount, share*100, currency.Format(topSum, currencyCode, false)),
				Amount: topSum,
			})
		}
	}

	if overdueThisMonth > 0 {
		alerts = append(alerts, Alert{
			Code:     AlertOverdueMonth,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%d factura(s) vencieron este mes", overdueThisMonth),
			Filter:   "overdue",
			Count:    overdueThisMonth,
		})
	}

	if dueSoon := summary.Buckets[models.BucketDueSoon]; dueSoon.Count > 0 {
		alerts = append(alerts, Alert{
			Code:     AlertDueSoon,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("%d factura(s) vencen dentro de 7 días", dueSoon.Count),
			Filter:   "due_soon",
			Count:    dueSoon.Count,
		})
	}

	if delinquent := summary.Buckets[models.BucketDelinquent]; delinquent.Count > 0 {
		alerts = append(alerts, Alert{
			Code:     AlertDelinquent,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("%d factura(s) en morosidad por %s",
				delinquent.Count, currency.Format(delinquent.Amount, currencyCode, false)),
			Filter: "bucket:delinquent",
			Count:  delinquent.Count,
			Amount: delinquent.Amount,
		})
	}

	if missingDue > 0 {
		alerts = append(alerts, Alert{
			Code:     AlertMissingDue,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%d factura(s) pendientes sin fecha de vencimiento", missingDue),
			Count:    missingDue,
		})
	}

	if uncollectible := summary.Buckets[models.BucketUncollectible]; uncollectible.Count > 0 {
		alerts = append(alerts, Alert{
			Code:     AlertUncollectible,
			Severity: SeverityCritical,
			Message: fmt.Sprintf("%d factura(s) incobrables por %s",
				uncollectible.Count, currency.Format(uncollectible.Amount, currencyCode, false)),
			Filter: "bucket:uncollectible",
			Count:  uncollectible.Count,
			Amount: uncollectible.Amount,
		})
	}

	return alerts
}
