// Package model contains the shared domain types.
package model

import "time"

// MediaKind distinguishes what a capture produced.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindAudio MediaKind = "audio"
)

// MediaCapture is the ephemeral on-device result of a camera, gallery or
// microphone operation. The local file is consumed exactly once by the
// uploader; after that the handle must not be used again.
type MediaCapture struct {
	LocalPath string    `json:"-"`
	Kind      MediaKind `json:"kind"`
	MIMEHint  string    `json:"mimeHint,omitempty"`
}

// StoredMediaRef is the durable reference returned once a capture has been
// pushed to object storage. Immutable after creation.
type StoredMediaRef struct {
	RemoteKey   string `json:"remoteKey"`
	DownloadURL string `json:"downloadUrl"`
}

// Place is a persisted point of interest. ID is assigned by the store on
// create and stable thereafter. Address is filled in asynchronously by the
// enrichment worker and may be empty.
type Place struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Address     string    `json:"address,omitempty"`
	MediaURL    string    `json:"mediaUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// GeoFix is a single point-in-time location reading.
type GeoFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RoutePath is the computed polyline between two fixes, in travel order.
type RoutePath struct {
	Points []GeoFix `json:"points"`
	// DistanceMeters and DurationSeconds are zero when the directions
	// service did not report them.
	DistanceMeters  int `json:"distanceMeters,omitempty"`
	DurationSeconds int `json:"durationSeconds,omitempty"`
}
