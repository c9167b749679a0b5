package payload

import (
	"encoding/json"
	"testing"

	"github.com/sourceplane/dpfactory/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mv(name string) model.MaterializedView {
	return model.MaterializedView{View: model.View{Name: name, Query: "SELECT 1"}}
}

func TestBuild_TopLevelAndViews(t *testing.T) {
	def := &model.Definition{
		Name:        "churn_v1",
		Domain:      "Retail",
		Catalog:     "raw",
		Schema:      "bank",
		Summary:     "Churn",
		Description: "Churn model",
		Owners:      []model.Owner{{Name: "Alice", Email: "alice@example.com"}},
		Views: []model.View{
			{Name: "v_churn", Description: "d", Query: "SELECT 1", Columns: []model.Column{{Name: "id", Type: "bigint"}}},
			{Name: "v_secure", Query: "SELECT 2", SecurityMode: "DEFINER"},
		},
	}

	p, err := Build(def, "dom-1", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "churn_v1", p.Name)
	assert.Equal(t, "raw", p.CatalogName)
	assert.Equal(t, "bank", p.SchemaName)
	assert.Equal(t, "dom-1", p.DataDomainID)
	assert.Equal(t, "Churn", p.Summary)
	require.Len(t, p.Views, 2)
	assert.Equal(t, "SELECT 1", p.Views[0].DefinitionQuery)
	assert.Equal(t, "INVOKER", p.Views[0].ViewSecurityMode)
	assert.Equal(t, "DEFINER", p.Views[1].ViewSecurityMode)
	assert.False(t, p.Views[0].MarkedForDeletion)
	assert.NotNil(t, p.Views[1].Columns)
	assert.Empty(t, p.MaterializedViews)
}

func TestBuild_ConfigurableSecurityModeDefault(t *testing.T) {
	def := &model.Definition{Name: "x", Views: []model.View{{Name: "v", Query: "SELECT 1"}}}

	p, err := Build(def, "d", Options{DefaultSecurityMode: "DEFINER"})
	require.NoError(t, err)
	assert.Equal(t, "DEFINER", p.Views[0].ViewSecurityMode)
}

func TestBuild_EmptyCollectionsSerializeAsArrays(t *testing.T) {
	p, err := Build(&model.Definition{Name: "x"}, "d", DefaultOptions())
	require.NoError(t, err)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"views":[]`)
	assert.Contains(t, string(data), `"materializedViews":[]`)
	assert.Contains(t, string(data), `"owners":[]`)
}

func TestBuild_RejectsIntervalAndCron(t *testing.T) {
	bad := mv("mv_both")
	bad.RefreshInterval = model.NewScalar("1h")
	bad.Cron = model.NewScalar("0 * * * *")
	def := &model.Definition{Name: "x", MaterializedViews: []model.MaterializedView{mv("ok"), bad}}

	_, err := Build(def, "d", DefaultOptions())
	require.Error(t, err)
	assert.True(t, model.IsValidationError(err))
	assert.Contains(t, err.Error(), "mv_both")
}

func TestBuild_RefreshMargin(t *testing.T) {
	tooShort := mv("mv_short")
	tooShort.RefreshInterval = model.NewScalar("60m")
	tooShort.MaxImportDuration = model.NewScalar("55m")

	_, err := Build(&model.Definition{Name: "x", MaterializedViews: []model.MaterializedView{tooShort}}, "d", DefaultOptions())
	require.Error(t, err)
	assert.True(t, model.IsValidationError(err))
	assert.Contains(t, err.Error(), "mv_short")
	assert.Contains(t, err.Error(), "60m")
	assert.Contains(t, err.Error(), "55m")

	longEnough := mv("mv_long")
	longEnough.RefreshInterval = model.NewScalar("70m")
	longEnough.MaxImportDuration = model.NewScalar("55m")

	p, err := Build(&model.Definition{Name: "x", MaterializedViews: []model.MaterializedView{longEnough}}, "d", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		PropRefreshInterval:   "70m",
		PropMaxImportDuration: "55m",
	}, p.MaterializedViews[0].DefinitionProperties)
}

func TestBuild_RefreshMarginBoundary(t *testing.T) {
	// 110m is exactly 1.10 x 100m and must be rejected
	m := mv("mv_edge")
	m.RefreshInterval = model.NewScalar("110m")
	m.MaxImportDuration = model.NewScalar("100m")

	_, err := Build(&model.Definition{Name: "x", MaterializedViews: []model.MaterializedView{m}}, "d", DefaultOptions())
	assert.True(t, model.IsValidationError(err))
}

func TestBuild_UnparseableDurationIsValidationError(t *testing.T) {
	m := mv("mv_bad")
	m.RefreshInterval = model.NewScalar("60")
	m.MaxImportDuration = model.NewScalar("5m")

	_, err := Build(&model.Definition{Name: "x", MaterializedViews: []model.MaterializedView{m}}, "d", DefaultOptions())
	assert.True(t, model.IsValidationError(err))
}

func TestBuild_CronScheduleProperties(t *testing.T) {
	m := mv("mv_cron")
	m.Description = "nightly"
	m.Cron = model.NewScalar("0 2 * * *")
	m.RefreshScheduleTimezone = model.NewScalar("Europe/Paris")
	m.IncrementalColumn = model.NewScalar("updated_at")
	m.GracePeriod = model.NewScalar("15m")
	m.FailedRefreshLimit = model.NewScalar("3")

	p, err := Build(&model.Definition{Name: "x", MaterializedViews: []model.MaterializedView{m}}, "d", DefaultOptions())
	require.NoError(t, err)

	got := p.MaterializedViews[0]
	assert.Equal(t, "mv_cron", got.Name)
	assert.Equal(t, "nightly", got.Description)
	assert.Equal(t, map[string]string{
		PropRefreshSchedule:         "0 2 * * *",
		PropRefreshScheduleTimezone: "Europe/Paris",
		PropIncrementalColumn:       "updated_at",
		PropGracePeriod:             "15m",
		PropFailedRefreshLimit:      "3",
	}, got.DefinitionProperties)
}

func TestBuild_InvalidCron(t *testing.T) {
	m := mv("mv_cron")
	m.Cron = model.NewScalar("every day")

	_, err := Build(&model.Definition{Name: "x", MaterializedViews: []model.MaterializedView{m}}, "d", DefaultOptions())
	assert.True(t, model.IsValidationError(err))
}

func TestBuild_PropertiesSerializeAsStrings(t *testing.T) {
	m := mv("mv")
	m.FailedRefreshLimit = model.NewScalar("5")

	p, err := Build(&model.Definition{Name: "x", MaterializedViews: []model.MaterializedView{m}}, "d", DefaultOptions())
	require.NoError(t, err)

	data, err := json.Marshal(p.MaterializedViews[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"failed_refresh_limit":"5"`)
}

func TestBuild_NormalizeSQL(t *testing.T) {
	def := &model.Definition{
		Name:  "x",
		Views: []model.View{{Name: "v", Query: "\n  SELECT a,\n\t b\n  FROM t  \n"}},
	}

	raw, err := Build(def, "d", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, def.Views[0].Query, raw.Views[0].DefinitionQuery)

	opts := DefaultOptions()
	opts.NormalizeSQL = true
	norm, err := Build(def, "d", opts)
	require.NoError(t, err)
	assert.Equal(t, "SELECT a, b FROM t", norm.Views[0].DefinitionQuery)
}

func TestBuild_Deterministic(t *testing.T) {
	m := mv("mv")
	m.RefreshInterval = model.NewScalar("2h")
	def := &model.Definition{Name: "x", Views: []model.View{{Name: "v", Query: "SELECT 1"}}, MaterializedViews: []model.MaterializedView{m}}

	a, err := Build(def, "d", DefaultOptions())
	require.NoError(t, err)
	b, err := Build(def, "d", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuild_OwnersKeepTheirShape(t *testing.T) {
	def := &model.Definition{
		Name: "x",
		Owners: []model.Owner{
			model.BareOwner("alice@example.com"),
			{Name: "Bob", Email: "bob@example.com"},
		},
	}

	p, err := Build(def, "d", DefaultOptions())
	require.NoError(t, err)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	var body struct {
		Owners json.RawMessage `json:"owners"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.JSONEq(t, `["alice@example.com", {"name": "Bob", "email": "bob@example.com"}]`, string(body.Owners))

	var back []model.Owner
	require.NoError(t, json.Unmarshal(body.Owners, &back))
	assert.True(t, back[0].Bare())
	assert.Equal(t, "alice@example.com", back[0].Email)
	assert.False(t, back[1].Bare())
}
