// Package models defines the dashboard entities returned by the REST API.
package models

import "time"

// Station status values.
const (
	StationAvailable   = "available"
	StationCharging    = "charging"
	StationOffline     = "offline"
	StationMaintenance = "maintenance"
)

// Connector types.
const (
	ConnectorCCS     = "ccs"
	ConnectorCHAdeMO = "chademo"
	ConnectorType2   = "type2"
	ConnectorTesla   = "nacs"
)

// StationStatuses lists every valid station status.
var StationStatuses = []string{StationAvailable, StationCharging, StationOffline, StationMaintenance}

// ConnectorTypes lists every valid connector type.
var ConnectorTypes = []string{ConnectorCCS, ConnectorCHAdeMO, ConnectorType2, ConnectorTesla}

// Station is a charging station as listed by /api/v1/stations/
type Station struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	City          string    `json:"city"`
	Status        string    `json:"status"`
	ConnectorType string    `json:"connector_type"`
	PowerKW       float64   `json:"power_kw"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GetID returns the station ID.
func (s Station) GetID() string { return s.ID }
