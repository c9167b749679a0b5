package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decode(t *testing.T, src string) interface{} {
	t.Helper()
	var doc interface{}
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	return doc
}

func TestValidateDefinition_Valid(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	doc := decode(t, `
name: churn_v1
domain: Retail
catalog: raw
schema: bank
owners:
  - alice@example.com
  - name: Bob
    email: bob@example.com
views:
  - name: v_churn
    query: SELECT 1
    columns:
      - name: id
        type: bigint
materialized_views:
  - name: mv_churn
    query: SELECT 2
    refresh_interval: 70m
    max_import_duration: 55m
    failed_refresh_limit: 3
`)
	assert.NoError(t, v.ValidateDefinition(doc))
}

func TestValidateDefinition_MissingRequired(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	err = v.ValidateDefinition(decode(t, "name: x\ndomain: d\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog")
}

func TestValidateDefinition_ViewWithoutQuery(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	err = v.ValidateDefinition(decode(t, `
name: x
catalog: c
schema: s
views:
  - name: v1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/views/0")
}

func TestValidateDefinition_NonScalarRefreshProperty(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	err = v.ValidateDefinition(decode(t, `
name: x
catalog: c
schema: s
materialized_views:
  - name: mv
    query: SELECT 1
    grace_period: [1, 2]
`))
	assert.Error(t, err)
}
