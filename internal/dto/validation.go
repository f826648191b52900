package dto

import (
	"github.com/verdatum/lca-review-api/internal/models"
)

// CheckReferencesRequest carries the references embedded in a document under
// edit, one entry per reference field.
type CheckReferencesRequest struct {
	References []ReferenceInput `json:"references" binding:"required,min=1,dive"`
}

// ReferenceInput is the wire form of an EntityRef.
type ReferenceInput struct {
	Type    models.EntityType `json:"type" binding:"required"`
	ID      string            `json:"id" binding:"required,uuid"`
	Version string            `json:"version" binding:"required"`
	URI     string            `json:"uri"`
}

// CheckReferencesResponse returns one diagnostic per submitted reference, in
// input order. When the request was cancelled mid-pass, Cancelled is true and
// Results covers only the references checked before the cutoff.
type CheckReferencesResponse struct {
	Results   []models.RefCheckResult `json:"results"`
	Cancelled bool                    `json:"cancelled,omitempty"`
}

// ResolveUnitResponse is the resolved leaf of a flow's unit chain.
type ResolveUnitResponse struct {
	Unit   models.EntityRef `json:"unit"`
	Name   string           `json:"name"`
	Symbol string           `json:"symbol,omitempty"`
	Factor float64          `json:"factor"`
	Hops   int              `json:"hops"`
}
