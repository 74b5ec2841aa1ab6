package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/johndauphine/tapsync/internal/catalog"
	"github.com/johndauphine/tapsync/internal/rules"
)

const artifactCatalog = `{
  "streams": [
    {
      "stream": "account",
      "tap_stream_id": "account",
      "schema": {"properties": {
        "id": {"type": "integer"},
        "Name": {"type": "string"},
        "secret": {"type": "string"}
      }},
      "key_properties": ["id"],
      "metadata": []
    },
    {
      "stream": "contact",
      "tap_stream_id": "contact",
      "schema": {"properties": {
        "id": {"type": "integer"},
        "email": {"type": "string"}
      }},
      "metadata": []
    }
  ]
}`

const artifactRules = "salesforce.account\n!salesforce.account.secret\n"

func artifactPlan(t *testing.T) *Plan {
	t.Helper()
	cat, err := catalog.Parse([]byte(artifactCatalog))
	require.NoError(t, err)
	rl, err := rules.Parse(artifactRules)
	require.NoError(t, err)
	p, warnings := Resolve("salesforce", rl, cat)
	require.Empty(t, warnings)
	return p
}

func TestEncodeGolden(t *testing.T) {
	data, err := Encode(artifactPlan(t))
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "plan", data)
}

func TestEncodeIdempotent(t *testing.T) {
	// Re-planning from identical rules text and catalog snapshot must
	// reproduce a byte-identical artifact.
	first, err := Encode(artifactPlan(t))
	require.NoError(t, err)
	second, err := Encode(artifactPlan(t))
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}

func TestWriteAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yml")
	require.NoError(t, WriteFile(path, artifactPlan(t)))

	a, err := LoadFile(path)
	require.NoError(t, err)

	account, ok := a.SelectedTables["account"]
	require.True(t, ok, "account missing from artifact")
	require.Equal(t, []string{"Name", "id"}, account.SelectedColumns)
	require.Equal(t, []string{"secret"}, account.IgnoredColumns)
	require.Equal(t, []string{"id"}, account.PrimaryKeys)
	require.Equal(t, []string{"contact"}, a.IgnoredTables)
}

func TestLoadFileRejectsEmptyPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yml")
	require.NoError(t, os.WriteFile(path, []byte("ignored_tables:\n  - a\n"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}
