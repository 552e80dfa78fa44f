package registry

import (
	"time"

	"github.com/google/uuid"

	"posyandu-logistics/internal/common"
)

// HealthPost is the logistics-side shadow of a posyandu owned by the
// health service. AssignedHubID is written only by the assignment resolver.
type HealthPost struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ExternalID      string     `db:"external_id" json:"externalId"`
	Name            string     `db:"name" json:"name"`
	Address         string     `db:"address" json:"address"`
	Lat             float64    `db:"lat" json:"lat"`
	Lng             float64    `db:"lng" json:"lng"`
	LocationPrecise bool       `db:"location_precise" json:"locationPrecise"`
	AssignedHubID   *uuid.UUID `db:"assigned_hub_id" json:"assignedHubId,omitempty"`
	LastSyncedAt    time.Time  `db:"last_synced_at" json:"lastSyncedAt"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

func (p *HealthPost) Location() common.Location {
	return common.NewLocation(p.Lat, p.Lng)
}
