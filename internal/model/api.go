package model

import "encoding/json"

// StatusCompleted is the terminal status of a successful publish workflow
const StatusCompleted = "COMPLETED"

// Domain is a Data Product domain as returned by the control plane
type Domain struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SchemaLocation string `json:"schemaLocation,omitempty"`
	Description    string `json:"description,omitempty"`
}

// CreateDomainRequest is the body of POST /domains
type CreateDomainRequest struct {
	Name           string `json:"name"`
	SchemaLocation string `json:"schemaLocation,omitempty"`
	Description    string `json:"description,omitempty"`
}

// ProductSummary is one hit of a product search
type ProductSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CatalogName  string `json:"catalogName,omitempty"`
	SchemaName   string `json:"schemaName,omitempty"`
	DataDomainID string `json:"dataDomainId,omitempty"`
	Status       string `json:"status,omitempty"`
}

// Product is the full Data Product returned by create, update and get
type Product struct {
	ID                string                    `json:"id"`
	Name              string                    `json:"name"`
	CatalogName       string                    `json:"catalogName"`
	SchemaName        string                    `json:"schemaName"`
	DataDomainID      string                    `json:"dataDomainId"`
	Summary           string                    `json:"summary,omitempty"`
	Description       string                    `json:"description,omitempty"`
	Status            string                    `json:"status,omitempty"`
	Owners            []Owner                   `json:"owners,omitempty"`
	Views             []ViewPayload             `json:"views"`
	MaterializedViews []MaterializedViewPayload `json:"materializedViews"`
}

// ProductPayload is the body of POST /products and PUT /products/{id}
type ProductPayload struct {
	Name              string                    `json:"name"`
	CatalogName       string                    `json:"catalogName"`
	SchemaName        string                    `json:"schemaName"`
	DataDomainID      string                    `json:"dataDomainId"`
	Summary           string                    `json:"summary"`
	Description       string                    `json:"description"`
	Owners            []Owner                   `json:"owners"`
	Views             []ViewPayload             `json:"views"`
	MaterializedViews []MaterializedViewPayload `json:"materializedViews"`
}

// ViewPayload is a view entry of a product payload
type ViewPayload struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	DefinitionQuery   string   `json:"definitionQuery"`
	ViewSecurityMode  string   `json:"viewSecurityMode,omitempty"`
	Columns           []Column `json:"columns"`
	MarkedForDeletion bool     `json:"markedForDeletion"`
}

// MaterializedViewPayload is a materialized view entry of a product payload.
// Every definition property value is a string; the control plane rejects
// numeric property values.
type MaterializedViewPayload struct {
	Name                 string            `json:"name"`
	Description          string            `json:"description"`
	DefinitionQuery      string            `json:"definitionQuery"`
	Columns              []Column          `json:"columns"`
	MarkedForDeletion    bool              `json:"markedForDeletion"`
	DefinitionProperties map[string]string `json:"definitionProperties"`
}

// TagValue is one element of PUT /tags/products/{id}
type TagValue struct {
	Value string `json:"value"`
}

// WorkflowStatus is the body returned when polling a publish workflow
type WorkflowStatus struct {
	IsFinalStatus bool              `json:"isFinalStatus"`
	Status        string            `json:"status"`
	Errors        []json.RawMessage `json:"errors,omitempty"`
}

// Succeeded reports whether the workflow finished with COMPLETED
func (s WorkflowStatus) Succeeded() bool {
	return s.IsFinalStatus && s.Status == StatusCompleted
}

// Catalog is a target catalog suitable for Data Products
type Catalog struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
