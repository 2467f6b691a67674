package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cobrapyme/morosidad/internal/config"
	"cobrapyme/morosidad/internal/importer"
	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/storage"
	"cobrapyme/morosidad/internal/utils"
)

func setupRedis(t *testing.T) *redis.Client {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	require.NoError(t, rdb.FlushAll(context.Background()).Err(), "Failed to flush Redis")
	return rdb
}

func setupImportServiceTest(t *testing.T, cfg *config.Config) (IImportService, IInvoiceService, ICustomerService, func()) {
	dbName := fmt.Sprintf("testdb_import_service_%d", time.Now().UnixNano())
	database, cleanup := setupTestDB(t, dbName)
	rdb := setupRedis(t)

	customers := NewCustomerService(database)
	invoices := NewInvoiceService(database, cfg)
	archive, err := storage.NewS3ImportArchive(cfg) // no bucket configured, no-op
	require.NoError(t, err)

	svc := NewImportService(cfg, rdb, customers, invoices, archive)
	return svc, invoices, customers, func() {
		_ = rdb.Close()
		cleanup()
	}
}

const importTestCSV = "Tipo Doc;Folio;Fecha Docto;RUT Cliente;Razon Social;Monto Neto;Monto IVA;Monto Total\n" +
	"33;1001;05-03-2026;76.543.210-3;Comercial Andina SpA;840.336;159.664;1.000.000\n" +
	"33;1002;10-03-2026;12.345.678-5;Ferretería El Clavo;420.168;79.832;500.000\n"

func TestImportService_PreviewAndCommit(t *testing.T) {
	svc, invoices, customers, cleanup := setupImportServiceTest(t, testConfig())
	defer cleanup()
	ownerID := utils.NewSixID()
	today := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	preview, err := svc.Preview(context.Background(), ownerID, "ventas.csv", []byte(importTestCSV))
	require.NoError(t, err)
	assert.NotEmpty(t, preview.PreviewID)
	assert.Equal(t, 2, preview.Totals.Rows)
	assert.Equal(t, 2, preview.Totals.New)
	assert.Equal(t, 0, preview.Totals.Existing)
	assert.Equal(t, 1500000.0, preview.Totals.Amount)

	summary, err := svc.Commit(context.Background(), ownerID, preview.PreviewID, today)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 0, summary.Failed)

	list, err := invoices.ListInvoices(context.Background(), ownerID, "all", today)
	require.NoError(t, err)
	require.Len(t, list, 2)

	customerList, err := customers.ListCustomers(context.Background(), ownerID, true)
	require.NoError(t, err)
	assert.Len(t, customerList, 2)

	// The stash stays claimable: a second commit re-runs the same upserts.
	summary, err = svc.Commit(context.Background(), ownerID, preview.PreviewID, today)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 2, summary.Updated)

	list, err = invoices.ListInvoices(context.Background(), ownerID, "all", today)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	customerList, err = customers.ListCustomers(context.Background(), ownerID, true)
	require.NoError(t, err)
	assert.Len(t, customerList, 2)
}

func TestImportService_CommitCreditNoteFullyCancels(t *testing.T) {
	svc, invoices, _, cleanup := setupImportServiceTest(t, testConfig())
	defer cleanup()
	ownerID := utils.NewSixID()
	today := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	payload := `<?xml version="1.0" encoding="UTF-8"?><EnvioDTE><SetDTE>` +
		`<DTE><Documento><Encabezado>` +
		`<IdDoc><TipoDTE>33</TipoDTE><Folio>7001</Folio><FchEmis>2026-03-05</FchEmis></IdDoc>` +
		`<Receptor><RUTRecep>76543210-3</RUTRecep><RznSocRecep>Comercial Andina SpA</RznSocRecep></Receptor>` +
		`<Totales><MntTotal>1000</MntTotal></Totales>` +
		`</Encabezado></Documento></DTE>` +
		`<DTE><Documento><Encabezado>` +
		`<IdDoc><TipoDTE>61</TipoDTE><Folio>7900</Folio><FchEmis>2026-03-20</FchEmis></IdDoc>` +
		`<Receptor><RUTRecep>76543210-3</RUTRecep><RznSocRecep>Comercial Andina SpA</RznSocRecep></Receptor>` +
		`<Totales><MntTotal>1000</MntTotal></Totales>` +
		`</Encabezado><Referencia><TpoDocRef>33</TpoDocRef><FolioRef>7001</FolioRef></Referencia></Documento></DTE>` +
		`</SetDTE></EnvioDTE>`

	preview, err := svc.Preview(context.Background(), ownerID, "envio.xml", []byte(payload))
	require.NoError(t, err)
	require.Len(t, preview.Rows, 1)

	summary, err := svc.Commit(context.Background(), ownerID, preview.PreviewID, today)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, summary.Errors)

	list, err := invoices.ListInvoices(context.Background(), ownerID, "paid", today)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "7001", list[0].Number)
	assert.Equal(t, models.InvoiceStatusPaid, list[0].Status)
	assert.Equal(t, 1000.0, list[0].AmountPaid)
	assert.Equal(t, 0.0, list[0].AmountRemaining)
	assert.Nil(t, list[0].Bucket)

	// Re-running the commit converges without disturbing the paid state.
	summary, err = svc.Commit(context.Background(), ownerID, preview.PreviewID, today)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 0, summary.Failed)

	list, err = invoices.ListInvoices(context.Background(), ownerID, "paid", today)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 0.0, list[0].AmountRemaining)
}

func TestImportService_PreviewFlagsExistingInvoices(t *testing.T) {
	svc, invoices, _, cleanup := setupImportServiceTest(t, testConfig())
	defer cleanup()
	ownerID := utils.NewSixID()
	today := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	_, err := invoices.CreateInvoice(context.Background(), ownerID, InvoiceInput{
		CustomerID: utils.NewSixID(),
		Number:     "1001",
		IssueDate:  today.AddDate(0, 0, -20),
		Total:      1000000,
	}, today)
	require.NoError(t, err)

	preview, err := svc.Preview(context.Background(), ownerID, "ventas.csv", []byte(importTestCSV))
	require.NoError(t, err)
	assert.Equal(t, 1, preview.Totals.Existing)
	assert.Equal(t, 1, preview.Totals.New)

	byNumber := map[string]bool{}
	for _, row := range preview.Rows {
		byNumber[row.Number] = row.Exists
	}
	assert.True(t, byNumber["1001"])
	assert.False(t, byNumber["1002"])
}

func TestImportService_CommitUnknownPreview(t *testing.T) {
	svc, _, _, cleanup := setupImportServiceTest(t, testConfig())
	defer cleanup()

	_, err := svc.Commit(context.Background(), utils.NewSixID(), "no-such-preview", time.Now().UTC())
	assert.True(t, errors.Is(err, ErrPreviewNotFound))
}

func TestImportService_PreviewScopedToOwner(t *testing.T) {
	svc, _, _, cleanup := setupImportServiceTest(t, testConfig())
	defer cleanup()

	ownerA := utils.NewSixID()
	preview, err := svc.Preview(context.Background(), ownerA, "ventas.csv", []byte(importTestCSV))
	require.NoError(t, err)

	// Another owner cannot claim the stash.
	_, err = svc.Commit(context.Background(), utils.NewSixID(), preview.PreviewID, time.Now().UTC())
	assert.True(t, errors.Is(err, ErrPreviewNotFound))
}

func TestImportService_PreviewRejectsOversizedFile(t *testing.T) {
	cfg := testConfig()
	cfg.ImportMaxFileMB = 1
	svc, _, _, cleanup := setupImportServiceTest(t, cfg)
	defer cleanup()

	data := make([]byte, 1024*1024+1)
	_, err := svc.Preview(context.Background(), utils.NewSixID(), "grande.csv", data)
	assert.Error(t, err)
}

func TestImportService_CommitRowsErrorExcerpt(t *testing.T) {
	svc, _, _, cleanup := setupImportServiceTest(t, testConfig())
	defer cleanup()
	ownerID := utils.NewSixID()
	today := time.Now().UTC()

	// Rows without a RUT cannot be reconciled to a customer.
	rows := make([]importer.Row, 7)
	for i := range rows {
		rows[i] = importer.Row{
			Number:    fmt.Sprintf("%d", 2000+i),
			SourceRow: i + 2,
			Total:     100,
		}
	}

	summary, err := svc.CommitRows(context.Background(), ownerID, rows, today)
	require.NoError(t, err)
	assert.Equal(t, 7, summary.Failed)
	assert.Len(t, summary.Errors, 5)
	assert.Equal(t, 2, summary.OmittedErrors)
	assert.Equal(t, "rut", summary.Errors[0].Field)
}
