package services

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cobrapyme/morosidad/internal/config"
	"cobrapyme/morosidad/internal/db"
)

var testMongoURI string

func init() {
	// Try to load .env from project root (2 levels up from this file)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "..", "..")
	if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil {
		godotenv.Load()
	}

	testMongoURI = os.Getenv("MONGO_URI_TEST")
	if testMongoURI == "" {
		testMongoURI = "mongodb://localhost:27017"
	}
}

// setupTestDB connects to the test Mongo instance, ensures the unique indexes
// the upsert paths depend on, and returns the database plus a cleanup that
// drops it.
func setupTestDB(t *testing.T, dbName string) (*mongo.Database, func()) {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(testMongoURI))
	require.NoError(t, err, "Failed to connect to MongoDB")

	database := client.Database(dbName)
	require.NoError(t, db.EnsureIndexes(context.Background(), database))

	cleanup := func() {
		if err := database.Drop(context.Background()); err != nil {
			t.Logf("Failed to drop database %s: %v", dbName, err)
		}
		if err := client.Disconnect(context.Background()); err != nil {
			t.Logf("Failed to disconnect MongoDB client: %v", err)
		}
	}
	return database, cleanup
}

func testConfig() *config.Config {
	return &config.Config{
		JwtSecret:         "test-secret-for-services",
		JwtTTL:            time.Hour,
		DefaultCurrency:   "CLP",
		DefaultDueDays:    30,
		ReminderLeadDays:  3,
		ImportPreviewTTL:  10 * time.Minute,
		ImportMaxFileMB:   10,
		ImportErrorsShown: 5,
		SmtpFromAddress:   "cobranza@test.local",
	}
}
