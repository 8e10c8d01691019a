package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/jpvelasco/placedrop/internal/geocode"
	"github.com/jpvelasco/placedrop/internal/places"
	"github.com/jpvelasco/placedrop/internal/queue"
)

// Processor is plugged into the asynq worker loop. It enriches freshly
// created places with a reverse geocoded address; the repository update
// reaches subscribers through the normal snapshot push.
type Processor struct {
	repo places.Repository
	geo  geocode.Reverser
	log  zerolog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(repo places.Repository, geo geocode.Reverser, log zerolog.Logger) *Processor {
	return &Processor{
		repo: repo,
		geo:  geo,
		log:  log.With().Str("component", "worker").Logger(),
	}
}

// Handler registers the enrich job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.EnrichPlaceTask, p.handleEnrich)
	return mux
}

func (p *Processor) handleEnrich(ctx context.Context, task *asynq.Task) error {
	var payload queue.EnrichPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	address, err := p.geo.Reverse(ctx, payload.Latitude, payload.Longitude)
	if err != nil {
		p.log.Warn().Err(err).Str("place", payload.PlaceID).Msg("reverse geocode failed")
		return err
	}
	if address == "" {
		// Nothing useful came back; the place stays valid without one.
		return nil
	}
	if err := p.repo.SetAddress(ctx, payload.PlaceID, address); err != nil {
		p.log.Error().Err(err).Str("place", payload.PlaceID).Msg("store address failed")
		return err
	}
	p.log.Info().Str("place", payload.PlaceID).Msg("place enriched")
	return nil
}
