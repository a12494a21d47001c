package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	require.NoError(t, err)

	var ups, downs int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, ups, downs)
	assert.GreaterOrEqual(t, ups, 1)

	schema, err := fs.ReadFile(migrationFS, "migrations/0001_init.up.sql")
	require.NoError(t, err)
	for _, unique := range []string{
		"UNIQUE (questionnaire_id, batch_number)",
		"UNIQUE (batch_id, question_text)",
	} {
		assert.Contains(t, string(schema), unique)
	}
}
