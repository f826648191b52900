package dto

import (
	"github.com/verdatum/lca-review-api/internal/models"
)

// DatasetVersionItem is one stored version of a dataset id with its state.
type DatasetVersionItem struct {
	Version   models.Version    `json:"version"`
	Type      models.EntityType `json:"type"`
	Name      string            `json:"name"`
	StateCode int               `json:"state_code"`
}

// DatasetVersionsResponse lists the stored versions of one dataset id.
type DatasetVersionsResponse struct {
	DatasetID string               `json:"dataset_id"`
	Versions  []DatasetVersionItem `json:"versions"`
}
