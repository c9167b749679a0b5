// Package payload turns a Data Product definition into the request body the
// control plane expects for create and update.
//
// Build is pure: it performs no I/O and returns the same payload for the same
// inputs. Materialized view refresh policies are validated here, and every
// materialized view definition property is emitted as a string because the
// control plane rejects numeric property values.
package payload

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/sourceplane/dpfactory/internal/duration"
	"github.com/sourceplane/dpfactory/internal/model"
)

// Property keys understood by the control plane
const (
	PropRefreshInterval         = "refresh_interval"
	PropRefreshSchedule         = "refresh_schedule"
	PropRefreshScheduleTimezone = "refresh_schedule_timezone"
	PropIncrementalColumn       = "incremental_column"
	PropMaxImportDuration       = "max_import_duration"
	PropGracePeriod             = "grace_period"
	PropFailedRefreshLimit      = "failed_refresh_limit"
)

// DefaultSecurityMode is used for views that do not declare security_mode
const DefaultSecurityMode = "INVOKER"

// MinRefreshMargin is how much longer the refresh interval must be than the
// max import duration.
const MinRefreshMargin = 1.10

// Options controls presentation choices of the builder
type Options struct {
	// DefaultSecurityMode applies to views without security_mode
	DefaultSecurityMode string
	// NormalizeSQL collapses runs of whitespace in query text
	NormalizeSQL bool
}

// DefaultOptions returns the builder defaults
func DefaultOptions() Options {
	return Options{
		DefaultSecurityMode: DefaultSecurityMode,
	}
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Build assembles the product payload for def in domainID
func Build(def *model.Definition, domainID string, opts Options) (*model.ProductPayload, error) {
	if def == nil {
		return nil, fmt.Errorf("definition cannot be nil")
	}
	if opts.DefaultSecurityMode == "" {
		opts.DefaultSecurityMode = DefaultSecurityMode
	}

	p := &model.ProductPayload{
		Name:              def.Name,
		CatalogName:       def.Catalog,
		SchemaName:        def.Schema,
		DataDomainID:      domainID,
		Summary:           def.Summary,
		Description:       def.Description,
		Owners:            def.Owners,
		Views:             make([]model.ViewPayload, 0, len(def.Views)),
		MaterializedViews: make([]model.MaterializedViewPayload, 0, len(def.MaterializedViews)),
	}
	if p.Owners == nil {
		p.Owners = []model.Owner{}
	}

	for _, v := range def.Views {
		mode := strings.TrimSpace(v.SecurityMode)
		if mode == "" {
			mode = opts.DefaultSecurityMode
		}
		p.Views = append(p.Views, model.ViewPayload{
			Name:              v.Name,
			Description:       v.Description,
			DefinitionQuery:   query(v.Query, opts),
			ViewSecurityMode:  mode,
			Columns:           columns(v.Columns),
			MarkedForDeletion: false,
		})
	}

	for _, mv := range def.MaterializedViews {
		props, err := Properties(mv)
		if err != nil {
			return nil, err
		}
		p.MaterializedViews = append(p.MaterializedViews, model.MaterializedViewPayload{
			Name:                 mv.Name,
			Description:          mv.Description,
			DefinitionQuery:      query(mv.Query, opts),
			Columns:              columns(mv.Columns),
			MarkedForDeletion:    false,
			DefinitionProperties: props,
		})
	}

	return p, nil
}

// Properties validates the refresh policy of mv and returns its definition
// properties.
func Properties(mv model.MaterializedView) (map[string]string, error) {
	subject := fmt.Sprintf("materialized view %s", mv.Name)
	props := make(map[string]string)

	// Refresh strategy: interval XOR cron
	if mv.RefreshInterval != nil && mv.Cron != nil {
		return nil, model.NewValidationError(subject, "cannot have both 'refresh_interval' and 'cron'")
	}
	switch {
	case mv.RefreshInterval != nil:
		props[PropRefreshInterval] = mv.RefreshInterval.String()
	case mv.Cron != nil:
		expr := strings.TrimSpace(mv.Cron.String())
		if _, err := cronParser.Parse(expr); err != nil {
			return nil, model.NewValidationError(subject, "invalid cron expression %q: %v", expr, err)
		}
		props[PropRefreshSchedule] = expr
	}

	if mv.RefreshInterval != nil && mv.MaxImportDuration != nil {
		interval := mv.RefreshInterval.String()
		importDuration := mv.MaxImportDuration.String()
		intervalMin, err := duration.ParseMinutes(interval)
		if err != nil {
			return nil, model.NewValidationError(subject, "refresh_interval: %v", err)
		}
		importMin, err := duration.ParseMinutes(importDuration)
		if err != nil {
			return nil, model.NewValidationError(subject, "max_import_duration: %v", err)
		}
		if float64(intervalMin) <= float64(importMin)*MinRefreshMargin {
			return nil, model.NewValidationError(subject,
				"the refresh interval (%s) must be at least 10%% longer than the max import duration (%s)",
				interval, importDuration)
		}
	}

	optional := []struct {
		key   string
		value *model.Scalar
	}{
		{PropRefreshScheduleTimezone, mv.RefreshScheduleTimezone},
		{PropIncrementalColumn, mv.IncrementalColumn},
		{PropMaxImportDuration, mv.MaxImportDuration},
		{PropGracePeriod, mv.GracePeriod},
		{PropFailedRefreshLimit, mv.FailedRefreshLimit},
	}
	for _, o := range optional {
		if o.value != nil {
			props[o.key] = o.value.String()
		}
	}

	return props, nil
}

// NormalizeSQL collapses consecutive whitespace into single spaces and trims
// the ends.
func NormalizeSQL(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func query(q string, opts Options) string {
	if opts.NormalizeSQL {
		return NormalizeSQL(q)
	}
	return q
}

func columns(cols []model.Column) []model.Column {
	if cols == nil {
		return []model.Column{}
	}
	return cols
}
