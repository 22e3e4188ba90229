// Package publisher emits harvest events to NATS.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/mkushnerov/tg-harvester/internal/harvester"
)

// SubjectHarvestCompleted is the subject completion events go to.
const SubjectHarvestCompleted = "harvest.completed"

// NATSClient interface to allow mocking
type NATSClient interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher implements harvester.EventPublisher
type NATSPublisher struct {
	conn NATSClient
}

// NewNATSPublisher creates a new publisher
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// PublishHarvestCompleted publishes a harvest completion event.
func (p *NATSPublisher) PublishHarvestCompleted(ctx context.Context, event harvester.HarvestCompletedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.conn.Publish(SubjectHarvestCompleted, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}
