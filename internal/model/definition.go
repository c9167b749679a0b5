package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is a declarative Data Product definition, one per YAML file
type Definition struct {
	Name              string             `yaml:"name" json:"name"`
	Domain            string             `yaml:"domain" json:"domain"`
	Catalog           string             `yaml:"catalog" json:"catalog"`
	Schema            string             `yaml:"schema" json:"schema"`
	Summary           string             `yaml:"summary" json:"summary"`
	Description       string             `yaml:"description" json:"description"`
	Owners            []Owner            `yaml:"owners" json:"owners"`
	Views             []View             `yaml:"views" json:"views"`
	MaterializedViews []MaterializedView `yaml:"materialized_views" json:"materialized_views"`
	Tags              []string           `yaml:"tags" json:"tags"`
}

// View is a logical view exposed by a Data Product
type View struct {
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description" json:"description"`
	Query        string   `yaml:"query" json:"query"`
	Columns      []Column `yaml:"columns" json:"columns"`
	SecurityMode string   `yaml:"security_mode" json:"security_mode"`
}

// MaterializedView is a view with a refresh policy.
// Optional properties are pointers so that presence can be told apart from
// an empty value.
type MaterializedView struct {
	View `yaml:",inline"`

	RefreshInterval         *Scalar `yaml:"refresh_interval" json:"refresh_interval,omitempty"`
	Cron                    *Scalar `yaml:"cron" json:"cron,omitempty"`
	RefreshScheduleTimezone *Scalar `yaml:"refresh_schedule_timezone" json:"refresh_schedule_timezone,omitempty"`
	IncrementalColumn       *Scalar `yaml:"incremental_column" json:"incremental_column,omitempty"`
	MaxImportDuration       *Scalar `yaml:"max_import_duration" json:"max_import_duration,omitempty"`
	GracePeriod             *Scalar `yaml:"grace_period" json:"grace_period,omitempty"`
	FailedRefreshLimit      *Scalar `yaml:"failed_refresh_limit" json:"failed_refresh_limit,omitempty"`
}

// Column describes one output column of a view
type Column struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description" json:"description"`
}

// Owner identifies a Data Product owner. It may be written either as a
// mapping with name/email or as a bare identifier; a bare identifier is sent
// to the control plane unchanged.
type Owner struct {
	Name  string `yaml:"name" json:"name"`
	Email string `yaml:"email" json:"email"`

	bare bool
}

// BareOwner returns an owner written as a plain identifier
func BareOwner(id string) Owner {
	o := Owner{Name: id, bare: true}
	if strings.Contains(id, "@") {
		o.Email = id
	}
	return o
}

// Bare reports whether the owner was written as a plain identifier
func (o Owner) Bare() bool {
	return o.bare
}

type ownerFields struct {
	Name  string `yaml:"name" json:"name"`
	Email string `yaml:"email" json:"email"`
}

// UnmarshalYAML accepts both "alice@corp.com" and {name: Alice, email: ...}
func (o *Owner) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*o = BareOwner(node.Value)
		return nil
	}

	var f ownerFields
	if err := node.Decode(&f); err != nil {
		return err
	}
	*o = Owner{Name: f.Name, Email: f.Email}
	return nil
}

// MarshalJSON writes a bare owner as a JSON string and any other owner as an
// object.
func (o Owner) MarshalJSON() ([]byte, error) {
	if o.bare {
		return json.Marshal(o.Name)
	}
	return json.Marshal(ownerFields{Name: o.Name, Email: o.Email})
}

// UnmarshalJSON accepts the same two shapes MarshalJSON writes
func (o *Owner) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*o = BareOwner(id)
		return nil
	}
	var f ownerFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*o = Owner{Name: f.Name, Email: f.Email}
	return nil
}

// Scalar holds the literal text of a YAML scalar regardless of its resolved
// type, so `failed_refresh_limit: 3` and `failed_refresh_limit: "3"` read the same.
type Scalar string

// UnmarshalYAML keeps the raw scalar text
func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", node.Line)
	}
	*s = Scalar(node.Value)
	return nil
}

// String returns the scalar text
func (s Scalar) String() string {
	return string(s)
}

// NewScalar returns a pointer to a Scalar, for building definitions in code
func NewScalar(v string) *Scalar {
	s := Scalar(v)
	return &s
}
