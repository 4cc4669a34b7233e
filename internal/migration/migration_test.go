package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/hightide/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyAutoMigratesOutsidePostgres(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, Apply(conn))

	for _, table := range []string{
		"affiliates", "affiliate_payout_methods", "campaigns", "campaign_events",
		"clicks", "leads", "customers", "customer_events", "counted_invoices", "payouts", "commissions",
		"notifications", "payment_events", "api_keys", "audit_logs",
	} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}

	// idempotent
	require.NoError(t, Apply(conn))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)

	_, err = newSource()
	assert.NoError(t, err)
}
