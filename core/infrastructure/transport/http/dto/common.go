package dto

import "github.com/hyperterse/queryengine/core/version"

// StatusResponse reports the state of the served engine
type StatusResponse struct {
	Status     string `json:"status"`
	Engine     int64  `json:"engine"`
	Connected  bool   `json:"connected"`
	Provider   string `json:"provider"`
	Datasource string `json:"datasource"`
}

// VersionResponse is the body of GET /version
type VersionResponse = version.Info

// ConnectionResponse is returned by /connect and /disconnect
type ConnectionResponse struct {
	Connected bool `json:"connected"`
}
