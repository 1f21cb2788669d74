package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	b, err := fs.ReadFile(Migrations, "00001_create_uploads.sql")
	require.NoError(t, err)

	body := string(b)
	assert.Contains(t, body, "-- +goose Up")
	assert.Contains(t, body, "-- +goose Down")
	assert.Contains(t, body, "CREATE TABLE upload_chunks")
}
