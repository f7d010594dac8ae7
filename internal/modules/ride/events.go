// README: Publishes applied ride transitions to the message broker as JSON.
package ride

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"wecare/internal/types"
)

// Broker is the transport under BrokerPublisher; *infra.Rabbit satisfies it.
type Broker interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// StatusChangedMessage is the body published under "ride.status.<status>".
type StatusChangedMessage struct {
	RideID        types.ID  `json:"ride_id"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	StatusVersion int       `json:"status_version"`
	DriverID      *types.ID `json:"driver_id,omitempty"`
	ActorType     string    `json:"actor_type"`
	ActorID       *types.ID `json:"actor_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type BrokerPublisher struct {
	broker Broker
}

func NewBrokerPublisher(b Broker) *BrokerPublisher {
	return &BrokerPublisher{broker: b}
}

func RoutingKey(s Status) string {
	return "ride.status." + string(s)
}

func (p *BrokerPublisher) PublishStatusChanged(ctx context.Context, r *Ride, e *Event) error {
	body, err := json.Marshal(StatusChangedMessage{
		RideID:        r.ID,
		From:          e.FromStatus,
		To:            e.ToStatus,
		StatusVersion: r.StatusVersion,
		DriverID:      r.DriverID,
		ActorType:     e.ActorType,
		ActorID:       e.ActorID,
		OccurredAt:    e.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal status change: %w", err)
	}
	return p.broker.Publish(ctx, RoutingKey(e.ToStatus), body)
}
