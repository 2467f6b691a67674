package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cobrapyme/morosidad/internal/config"
	"cobrapyme/morosidad/internal/importer"
	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/storage"
	"cobrapyme/morosidad/internal/utils"
)

// IImportService drives the two-phase reconciliation import. Preview parses
// and stashes; Commit claims the stash and writes. Committing the same
// preview twice converges on the same store state.
type IImportService interface {
	Preview(ctx context.Context, ownerID utils.SixID, filename string, data []byte) (*ImportPreview, error)
	Commit(ctx context.Context, ownerID utils.SixID, previewID string, today time.Time) (*CommitSummary, error)
	// CommitRows bypasses the stash and reconciles caller-supplied rows,
	// used when a preview has expired and the client re-posts its rows.
	CommitRows(ctx context.Context, ownerID utils.SixID, rows []importer.Row, today time.Time) (*CommitSummary, error)
}

// ImportPreview is what the preview phase hands back: a claimable ID plus
// everything the user needs to review before committing.
type ImportPreview struct {
	PreviewID string `json:"preview_id"`
	importer.Preview
}

// CommitSummary reports a finished commit. Errors holds at most the
// configured excerpt size; OmittedErrors counts the rest.
type CommitSummary struct {
	Created       int                 `json:"created"`
	Updated       int                 `json:"updated"`
	Failed        int                 `json:"failed"`
	Errors        []importer.RowError `json:"errors"`
	OmittedErrors int                 `json:"omitted_errors"`
}

var ErrPreviewNotFound = errors.New("import preview not found or expired")

type importService struct {
	cfg         *config.Config
	redisClient *redis.Client
	customers   ICustomerService
	invoices    IInvoiceService
	archive     storage.IImportArchive
}

// NewImportService creates a new ImportService.
func NewImportService(cfg *config.Config, redisClient *redis.Client, customers ICustomerService, invoices IInvoiceService, archive storage.IImportArchive) IImportService {
	return &importService{
		cfg:         cfg,
		redisClient: redisClient,
		customers:   customers,
		invoices:    invoices,
		archive:     archive,
	}
}

func previewKey(ownerID utils.SixID, previewID string) string {
	return fmt.Sprintf("import:preview:%s:%s", ownerID.String(), previewID)
}

func (s *importService) Preview(ctx context.Context, ownerID utils.SixID, filename string, data []byte) (*ImportPreview, error) {
	if max := s.cfg.ImportMaxFileMB * 1024 * 1024; max > 0 && len(data) > max {
		return nil, fmt.Errorf("el archivo excede el tamaño máximo de %d MB", s.cfg.ImportMaxFileMB)
	}

	preview, err := importer.Parse(filename, bytes.NewReader(data), s.cfg.DefaultDueDays)
	if err != nil {
		return nil, err
	}

	numbers := make([]string, 0, len(preview.Rows))
	for _, row := range preview.Rows {
		numbers = append(numbers, row.Number)
	}
	existing, err := s.invoices.ExistingNumbers(ctx, ownerID, numbers)
	if err != nil {
		return nil, fmt.Errorf("failed to flag duplicate invoices: %w", err)
	}
	preview.MarkExisting(existing)

	result := &ImportPreview{
		PreviewID: uuid.NewString(),
		Preview:   *preview,
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	if err := s.redisClient.Set(ctx, previewKey(ownerID, result.PreviewID), payload, s.cfg.ImportPreviewTTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to stash preview %s: %w", result.PreviewID, err)
	}

	if key, err := s.archive.ArchiveImportFile(ctx, ownerID.String(), filename, data); err != nil {
		// Archival is best-effort: a failed upload must not block the import.
		log.Printf("WARN: failed to archive import file %s: %v", filename, err)
	} else if key != "" {
		log.Printf("Archived import file %s as %s", filename, key)
	}

	return result, nil
}

func (s *importService) Commit(ctx context.Context, ownerID utils.SixID, previewID string, today time.Time) (*CommitSummary, error) {
	key := previewKey(ownerID, previewID)
	payload, err := s.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPreviewNotFound
		}
		return nil, fmt.Errorf("failed to claim preview %s: %w", previewID, err)
	}

	var preview ImportPreview
	if err := json.Unmarshal(payload, &preview); err != nil {
		return nil, fmt.Errorf("failed to decode stashed preview %s: %w", previewID, err)
	}

	summary, err := s.CommitRows(ctx, ownerID, preview.Rows, today)
	if err != nil {
		return nil, err
	}

	// The stash stays claimable until its TTL: committing again simply
	// re-runs the same upserts.
	return summary, nil
}

func (s *importService) CommitRows(ctx context.Context, ownerID utils.SixID, rows []importer.Row, today time.Time) (*CommitSummary, error) {
	summary := &CommitSummary{Errors: []importer.RowError{}}
	var allErrors []importer.RowError

	for _, row := range rows {
		customer, err := s.customers.FindOrCreateByRUT(ctx, ownerID, row.RUT, row.CustomerName)
		if err != nil {
			summary.Failed++
			allErrors = append(allErrors, importer.RowError{
				Row: row.SourceRow, Field: "rut", Message: err.Error()})
			continue
		}

		invoice := &models.Invoice{
			OwnerID:         ownerID,
			CustomerID:      customer.ID,
			Number:          row.Number,
			Currency:        s.cfg.DefaultCurrency,
			IssueDate:       row.IssueDate,
			DueDate:         row.DueDate,
			PaymentDate:     row.PaymentDate,
			Status:          row.Status,
			Net:             row.Net,
			Tax:             row.Tax,
			Exempt:          row.Exempt,
			Total:           row.Total,
			AmountPaid:      row.AmountPaid,
			AmountRemaining: row.AmountRemaining,
			DTEType:         row.DTEType,
			SIIImported:     true,
		}

		created, err := s.invoices.CreateOrUpdateByNumber(ctx, ownerID, invoice, today)
		if err != nil {
			summary.Failed++
			allErrors = append(allErrors, importer.RowError{
				Row: row.SourceRow, Field: "folio", Message: err.Error()})
			continue
		}
		if created {
			summary.Created++
		} else {
			summary.Updated++
		}
	}

	shown := s.cfg.ImportErrorsShown
	if shown <= 0 {
		shown = 5
	}
	if len(allErrors) > shown {
		summary.Errors = allErrors[:shown]
		summary.OmittedErrors = len(allErrors) - shown
	} else if len(allErrors) > 0 {
		summary.Errors = allErrors
	}

	log.Printf("Import commit for owner %s: %d created, %d updated, %d failed",
		ownerID.String(), summary.Created, summary.Updated, summary.Failed)
	return summary, nil
}
