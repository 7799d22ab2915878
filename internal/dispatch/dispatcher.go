package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/analytics"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/repositories"
)

// eventBuffer is the per-subscriber handoff depth. A full buffer never
// blocks the feed: the oldest event is folded into the newest instead.
const eventBuffer = 8

// resubscribeDelay spaces reconnect attempts after a feed failure.
const resubscribeDelay = 2 * time.Second

// Event is one dispatcher emission: the post-change dashboard state plus
// the set of order ids that were absent from the previous snapshot.
// Presentation policy (sounds, badges, quiet hours) lives with the
// consumer; the signal here is unconditional.
type Event struct {
	RestaurantID    string          `json:"restaurant_id"`
	NewOrders       bool            `json:"new_orders"`
	NewOrderIDs     []string        `json:"new_order_ids,omitempty"`
	PendingOrders   []*models.Order `json:"pending_orders"`
	CompletedOrders []*models.Order `json:"completed_orders"`
	ActiveCount     int             `json:"active_count"`
	PendingCount    int             `json:"pending_count"`
	CompletedCount  int             `json:"completed_count"`
}

// Subscription is one listener's event stream. The channel closes when the
// subscriber's context ends.
type Subscription struct {
	events chan Event
}

// Events returns the subscriber's event channel.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// push hands an event to the subscriber without ever blocking. When the
// buffer is full the oldest queued event is dropped and its arrival delta
// folded into the incoming one, so a slow consumer still learns about
// every new order id.
func (s *Subscription) push(event Event) {
	for {
		select {
		case s.events <- event:
			return
		default:
			select {
			case dropped := <-s.events:
				if dropped.NewOrders {
					event.NewOrderIDs = mergeIDs(dropped.NewOrderIDs, event.NewOrderIDs)
					event.NewOrders = true
				}
			default:
			}
		}
	}
}

func mergeIDs(old, current []string) []string {
	seen := make(map[string]bool, len(old)+len(current))
	merged := make([]string, 0, len(old)+len(current))
	for _, id := range append(append([]string{}, old...), current...) {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	return merged
}

// Dispatcher watches a store change feed and turns snapshots into discrete
// events by diffing order-id sets. Diffing by id, not by count or sequence
// number, is what keeps the signal correct under the feed's at-least-once,
// possibly reordered delivery.
type Dispatcher struct {
	store      repositories.OrderStore
	retryDelay time.Duration
}

// NewDispatcher creates a dispatcher over the given store.
func NewDispatcher(store repositories.OrderStore) *Dispatcher {
	return &Dispatcher{store: store, retryDelay: resubscribeDelay}
}

// Subscribe starts a tracking loop for one restaurant. The first snapshot
// after subscribing only primes the seen-set; pre-existing orders never
// produce an arrival event. The loop survives feed failures by
// resubscribing with the seen-set intact, so reconnects neither duplicate
// nor miss arrivals.
func (d *Dispatcher) Subscribe(ctx context.Context, restaurantID string) *Subscription {
	sub := &Subscription{events: make(chan Event, eventBuffer)}
	go d.run(ctx, restaurantID, sub)
	return sub
}

func (d *Dispatcher) run(ctx context.Context, restaurantID string, sub *Subscription) {
	defer close(sub.events)

	seen := make(map[string]bool)
	primed := false

	for {
		feed, err := d.store.Subscribe(ctx, restaurantID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("dispatch: subscribe for %s failed: %v", restaurantID, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.retryDelay):
			}
			continue
		}

		for snap := range feed {
			event, emit := track(snap, seen, &primed)
			if emit {
				sub.push(event)
			}
		}

		if ctx.Err() != nil {
			return
		}
		log.Printf("dispatch: change feed for %s ended, resubscribing", restaurantID)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.retryDelay):
		}
	}
}

// track advances the seen-set state machine by one snapshot. The seen-set
// is replaced unconditionally, so an order that vanishes and reappears
// counts as new again only if it was really absent last time.
func track(snap repositories.Snapshot, seen map[string]bool, primed *bool) (Event, bool) {
	current := make(map[string]bool, len(snap.Orders))
	var newIDs []string
	for _, order := range snap.Orders {
		current[order.ID] = true
		if !seen[order.ID] {
			newIDs = append(newIDs, order.ID)
		}
	}

	for id := range seen {
		delete(seen, id)
	}
	for id := range current {
		seen[id] = true
	}

	if !*primed {
		*primed = true
		return Event{}, false
	}

	pending, completed := analytics.Partition(snap.Orders)
	return Event{
		RestaurantID:    snap.RestaurantID,
		NewOrders:       len(newIDs) > 0,
		NewOrderIDs:     newIDs,
		PendingOrders:   pending,
		CompletedOrders: completed,
		ActiveCount:     len(pending),
		PendingCount:    len(pending),
		CompletedCount:  len(completed),
	}, true
}
