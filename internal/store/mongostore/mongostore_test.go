package mongostore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cankoe/reporting-scheduler/internal/database"
	"github.com/cankoe/reporting-scheduler/internal/store"
	"github.com/cankoe/reporting-scheduler/internal/store/mongostore"
	"github.com/cankoe/reporting-scheduler/internal/store/storetest"
)

// Requires a reachable MongoDB, e.g.
// REPORTING_TEST_MONGO_URI=mongodb://localhost:27017 go test ./internal/store/mongostore
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("REPORTING_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("REPORTING_TEST_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		client, err := database.NewMongoClient(context.Background(), uri, "reporting-test")
		require.NoError(t, err)

		name := fmt.Sprintf("reporting_test_%d", time.Now().UnixNano())
		s, err := mongostore.New(context.Background(), client, name)
		require.NoError(t, err)
		t.Cleanup(func() {
			ctx := context.Background()
			_ = s.Database().Drop(ctx)
			_ = s.Close(ctx)
		})
		return s
	})
}
