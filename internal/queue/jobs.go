package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// EnrichPlaceTask is scheduled each time a place is created.
	EnrichPlaceTask = "place:enrich"
)

// EnrichPayload tells the worker which place to reverse geocode.
type EnrichPayload struct {
	PlaceID   string  `json:"place_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// EnqueueEnrich enqueues a place enrichment job.
func EnqueueEnrich(ctx context.Context, client *asynq.Client, payload EnrichPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(EnrichPlaceTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue enrich task: %w", err)
	}
	return nil
}
