// Package places is the repository for points of interest: create one,
// observe all. Observation is push based; every change to the backing
// collection delivers a full updated snapshot to every open subscription.
package places

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jpvelasco/placedrop/internal/model"
)

// ErrValidation rejects a malformed draft locally, before anything is sent
// to the backend.
var ErrValidation = errors.New("invalid place")

// Draft is the caller-supplied part of a new place. The store assigns the id.
type Draft struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	// MediaURL optionally attaches one stored media reference.
	MediaURL string `json:"mediaUrl,omitempty"`
}

// Validate checks that all required fields are present and the coordinates
// are finite WGS84 degrees.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	if !validCoordinate(d.Latitude, 90) {
		return fmt.Errorf("%w: latitude %v out of range", ErrValidation, d.Latitude)
	}
	if !validCoordinate(d.Longitude, 180) {
		return fmt.Errorf("%w: longitude %v out of range", ErrValidation, d.Longitude)
	}
	return nil
}

func validCoordinate(v, bound float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -bound && v <= bound
}

// Repository is the CRUD-lite facade over the place collection.
type Repository interface {
	// Create validates the draft, persists it and returns the new id.
	Create(ctx context.Context, draft Draft) (string, error)
	// All returns the current snapshot, ordered by arrival.
	All(ctx context.Context) ([]model.Place, error)
	// Subscribe opens a live snapshot stream. The initial snapshot (empty
	// is fine, delivered exactly once) arrives immediately; the caller
	// must Close the subscription on teardown.
	Subscribe(ctx context.Context) (*Subscription, error)
	// SetAddress stores the enrichment worker's reverse geocoding result.
	SetAddress(ctx context.Context, id, address string) error
}
