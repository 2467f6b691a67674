package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"cobrapyme/morosidad/internal/config"
	"cobrapyme/morosidad/internal/portfolio"
	"cobrapyme/morosidad/internal/utils"
)

// IDashboardService assembles the collections overview: bucket stats, aging
// bands and alerts over one owner's pending portfolio.
type IDashboardService interface {
	Summary(ctx context.Context, ownerID utils.SixID, today time.Time) (*portfolio.Summary, error)
}

type dashboardService struct {
	cfg      *config.Config
	invoices IInvoiceService
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(cfg *config.Config, invoices IInvoiceService) IDashboardService {
	return &dashboardService{cfg: cfg, invoices: invoices}
}

// Summary sweeps the owner's buckets first so the persisted state and the
// aggregate never disagree, then aggregates in memory.
func (s *dashboardService) Summary(ctx context.Context, ownerID utils.SixID, today time.Time) (*portfolio.Summary, error) {
	if changed, err := s.invoices.SweepBuckets(ctx, ownerID, today); err != nil {
		return nil, fmt.Errorf("failed to refresh buckets for owner %s: %w", ownerID.String(), err)
	} else if changed > 0 {
		log.Printf("Dashboard sweep reclassified %d invoices for owner %s", changed, ownerID.String())
	}

	pending, err := s.invoices.FindPendingByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	summary := portfolio.Aggregate(pending, today, s.cfg.DefaultCurrency)
	return &summary, nil
}
