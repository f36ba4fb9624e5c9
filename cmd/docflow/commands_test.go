package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/record"
	"github.com/joseph-ayodele/docflow/internal/repository"
)

type cliTestEnv struct {
	stagingPath  string
	verifiedPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	base := t.TempDir()
	t.Chdir(base)

	env := &cliTestEnv{
		stagingPath:  filepath.Join(base, "staging.db"),
		verifiedPath: filepath.Join(base, "verified.db"),
	}
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("STAGING_DB_URL", env.stagingPath)
	t.Setenv("VERIFIED_DB_URL", env.verifiedPath)
	t.Setenv("LOG_LEVEL", "error")
	return env
}

func (e *cliTestEnv) seed(t *testing.T, path string, recs ...record.Flat) {
	t.Helper()
	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, "seed", path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer repository.Close(db, slog.New(slog.DiscardHandler))

	_, err = repository.NewDocumentTable(db, "documents", slog.New(slog.DiscardHandler)).InsertBatch(ctx, recs)
	require.NoError(t, err)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func flat(kv ...string) record.Flat {
	var f record.Flat
	for i := 0; i+1 < len(kv); i += 2 {
		v := kv[i+1]
		f.Fields = append(f.Fields, record.FlatField{Key: kv[i], Text: &v})
	}
	return f
}

func TestEnsureSchemaCommand(t *testing.T) {
	setupCLITestEnv(t)

	out, err := runCLI(t, "ensure-schema", "--columns", "Vendor,Total (USD)")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{"Vendor", "Total (USD)"}, lines)

	// a second run with an extra key only adds the new column
	out, err = runCLI(t, "ensure-schema", "--columns", "Vendor,Date")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{"Vendor", "Total (USD)", "Date"}, lines)
}

func TestEnsureSchemaRequiresColumns(t *testing.T) {
	setupCLITestEnv(t)

	_, err := runCLI(t, "ensure-schema", "--columns", " , ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--columns")
}

func TestDocumentsCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed(t, env.stagingPath,
		flat("Vendor", "ACME", "Total", "12.50"),
		flat("Vendor", "Globex", "Date", "2024-01-02"),
	)

	out, err := runCLI(t, "documents", "--json")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "ACME", rows[0]["Vendor"])
	assert.Nil(t, rows[0]["Date"])
	assert.Equal(t, "2024-01-02", rows[1]["Date"])

	out, err = runCLI(t, "documents")
	require.NoError(t, err)
	for _, want := range []string{"Vendor", "Total", "Date", "ACME", "Globex", "12.50"} {
		assert.Contains(t, out, want)
	}

	// the verified store is separate and still empty
	out, err = runCLI(t, "documents", "--verified")
	require.NoError(t, err)
	assert.Equal(t, "No documents found.\n", out)
}

func TestDBHealthCommand(t *testing.T) {
	setupCLITestEnv(t)

	out, err := runCLI(t, "dbhealth")
	require.NoError(t, err)
	assert.Contains(t, out, "staging")
	assert.Contains(t, out, "verified")
	assert.Contains(t, out, "sqlite")
	assert.NotContains(t, out, "FAIL")
}

func TestExportCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed(t, env.verifiedPath, flat("Vendor", "ACME"))

	target := filepath.Join(t.TempDir(), "out.xlsx")
	out, err := runCLI(t, "export", "--verified", "-o", target)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+target)
	assert.FileExists(t, target)
}

func TestKindOf(t *testing.T) {
	kind, err := kindOf("scan.PDF")
	require.NoError(t, err)
	assert.Equal(t, constants.PDF, kind)

	kind, err = kindOf("/tmp/receipt.jpeg")
	require.NoError(t, err)
	assert.Equal(t, constants.IMAGE, kind)

	_, err = kindOf("notes.txt")
	assert.Error(t, err)
}

func TestReadInput(t *testing.T) {
	text, err := readInput(strings.NewReader("Total 12.50\n"), "-")
	require.NoError(t, err)
	assert.Equal(t, "Total 12.50\n", text)

	_, err = readInput(strings.NewReader("  \n"), "-")
	assert.Error(t, err)

	_, err = readInput(nil, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}}, 0, false)
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "B")
	assert.Contains(t, out, "1")
	assert.Empty(t, renderTable(nil, nil, 0, false))
}
