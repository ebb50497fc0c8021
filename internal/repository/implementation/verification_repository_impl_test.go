package implementation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// dryRunDB builds statements without a server and records the last query.
func dryRunDB(t *testing.T) (*gorm.DB, *string) {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 user=zkcred dbname=zkcred sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	var last string
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:capture", func(tx *gorm.DB) {
		last = tx.Statement.SQL.String()
	}))
	return db, &last
}

func TestFindBySessionQuery(t *testing.T) {
	db, last := dryRunDB(t)
	repo := NewSessionEventRepository(db)

	events, err := repo.FindBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.Contains(t, *last, `FROM "session_events"`)
	assert.Contains(t, *last, "session_id = $1")
	assert.Contains(t, *last, `ORDER BY "created_at"`)
	assert.NotContains(t, *last, "DESC")
}

func TestFindVerifiedByOwnerQuery(t *testing.T) {
	db, last := dryRunDB(t)
	repo := NewVerificationRepository(db)

	records, err := repo.FindVerifiedByOwner(context.Background(), "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.Contains(t, *last, `FROM "verifications"`)
	assert.Contains(t, *last, "owner_id = $1")
	assert.Contains(t, *last, "status = $2")
	assert.Contains(t, *last, `ORDER BY "created_at" DESC`)
	assert.Contains(t, *last, "LIMIT")
}
