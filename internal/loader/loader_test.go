package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sourceplane/dpfactory/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExpandEnv(t *testing.T) {
	lookup := lookupFrom(map[string]string{"CATALOG": "lake", "SCHEMA": "bank"})

	assert.Equal(t, "lake.bank", ExpandEnv("${CATALOG}.$SCHEMA", lookup))
	assert.Equal(t, "${MISSING} and $ALSO_MISSING", ExpandEnv("${MISSING} and $ALSO_MISSING", lookup))
	assert.Equal(t, "cost $ 5", ExpandEnv("cost $ 5", lookup))
	assert.Equal(t, "${}", ExpandEnv("${}", lookup))
}

func TestLoad_SubstitutesEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "churn.yaml", `
name: churn_v1
domain: Retail Banking
catalog: ${CATALOG}
schema: bank
owners:
  - alice@example.com
views:
  - name: v_churn
    query: SELECT * FROM ${CATALOG}.bank.customers WHERE region = '${REGION}'
materialized_views:
  - name: mv_daily
    query: SELECT 1
    refresh_interval: 70m
    max_import_duration: 55m
    failed_refresh_limit: 3
tags: [retail, churn]
`)

	l, err := NewLoader()
	require.NoError(t, err)
	l = l.WithLookup(lookupFrom(map[string]string{"CATALOG": "lake"}))

	def, err := l.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "churn_v1", def.Name)
	assert.Equal(t, "Retail Banking", def.Domain)
	assert.Equal(t, "lake", def.Catalog)
	require.Len(t, def.Views, 1)
	assert.Equal(t, "SELECT * FROM lake.bank.customers WHERE region = '${REGION}'", def.Views[0].Query)
	require.Len(t, def.Owners, 1)
	assert.Equal(t, "alice@example.com", def.Owners[0].Email)
	require.Len(t, def.MaterializedViews, 1)
	mv := def.MaterializedViews[0]
	assert.Equal(t, "mv_daily", mv.Name)
	require.NotNil(t, mv.FailedRefreshLimit)
	assert.Equal(t, "3", mv.FailedRefreshLimit.String())
	assert.Nil(t, mv.Cron)
	assert.Equal(t, []string{"retail", "churn"}, def.Tags)
}

func TestLoad_SchemaViolationIsValidationError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.yaml", "name: x\ndomain: d\n")

	l, err := NewLoader()
	require.NoError(t, err)

	_, err = l.Load(path)
	require.Error(t, err)
	assert.True(t, model.IsValidationError(err))
	assert.Contains(t, err.Error(), "broken.yaml")
}

func TestLoad_SyntaxErrorIsNotValidationError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "name: [unclosed\n")

	l, err := NewLoader()
	require.NoError(t, err)

	_, err = l.Load(path)
	require.Error(t, err)
	assert.False(t, model.IsValidationError(err))
}

func TestLoad_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.yaml", "")

	l, err := NewLoader()
	require.NoError(t, err)

	_, err = l.Load(path)
	assert.ErrorContains(t, err, "empty")
}

func TestDiscoverDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yml", "")
	writeFile(t, dir, "a.yaml", "")
	writeFile(t, dir, ".hidden.yaml", "")
	writeFile(t, dir, "notes.txt", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))

	files, err := DiscoverDefinitions(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yml")}, files)
}

func TestDiscoverDefinitions_MissingFolder(t *testing.T) {
	_, err := DiscoverDefinitions(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrFolderNotFound)
}

func TestDiscoverDefinitions_EmptyFolder(t *testing.T) {
	files, err := DiscoverDefinitions(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestParse_NumericValuesReachSchema(t *testing.T) {
	l, err := NewLoader()
	require.NoError(t, err)

	def, err := l.Parse("numbers.yaml", []byte(`
name: numbers
domain: Retail
catalog: lake
schema: bank
materialized_views:
  - name: mv_numbers
    query: SELECT 1
    refresh_interval: 2h
    grace_period: 15
    failed_refresh_limit: 2.5
    incremental_column: true
`))
	require.NoError(t, err)
	mv := def.MaterializedViews[0]
	assert.Equal(t, "15", mv.GracePeriod.String())
	assert.Equal(t, "2.5", mv.FailedRefreshLimit.String())
	assert.Equal(t, "true", mv.IncrementalColumn.String())

	_, err = l.Parse("numeric-name.yaml", []byte("name: 42\ncatalog: lake\nschema: bank\n"))
	require.Error(t, err)
	assert.True(t, model.IsValidationError(err))
	assert.Contains(t, err.Error(), "/name")
}
