package migration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestMigrationVersion(t *testing.T) {
	version, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)
}

func TestMigrationsChecksumIsStable(t *testing.T) {
	a, err := MigrationsChecksum()
	require.NoError(t, err)
	b, err := MigrationsChecksum()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestParseMigrationVersion(t *testing.T) {
	v, ok := parseMigrationVersion("000012_add_invoices.up.sql")
	assert.True(t, ok)
	assert.EqualValues(t, 12, v)

	_, ok = parseMigrationVersion("init.up.sql")
	assert.False(t, ok)

	_, ok = parseMigrationVersion("000000_empty.up.sql")
	assert.False(t, ok)
}

func TestUpMigrationsAreOrdered(t *testing.T) {
	files, err := upMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for i := 1; i < len(files); i++ {
		assert.Less(t, files[i-1].Version, files[i].Version)
	}
	assert.Equal(t, "000001_init.up.sql", files[0].Name)
}

func TestMigrationLockKeyIsPositive(t *testing.T) {
	assert.Positive(t, migrationLockKey)
}

func TestInitMigrationCreatesInvoiceNumberSequence(t *testing.T) {
	content, err := embeddedMigrations.ReadFile(migrationsDir + "/000001_init.up.sql")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), "CREATE SEQUENCE invoice_numbers START 1000000"))
}

func TestSchemaStateCurrent(t *testing.T) {
	var missing *SchemaState
	ok, err := missing.Current()
	require.NoError(t, err)
	assert.False(t, ok)

	checksum, err := MigrationsChecksum()
	require.NoError(t, err)
	ok, err = (&SchemaState{SchemaVersion: "2", Checksum: checksum}).Current()
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = (&SchemaState{SchemaVersion: "2", Checksum: "stale"}).Current()
	require.NoError(t, err)
	assert.False(t, ok)
}
