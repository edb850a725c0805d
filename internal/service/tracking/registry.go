package tracking

import (
	"sync"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

// registry tracks who watches which delivery. All operations are O(1)-ish map
// work under one mutex; nothing here touches the network, so holding the lock
// is always cheap.
type registry struct {
	mu sync.RWMutex

	// deliveryID -> connID -> role
	byDelivery map[uuid.UUID]map[uuid.UUID]types.SubscriptionRole
	// connID -> deliveryIDs, for teardown on connection loss
	byConn map[uuid.UUID]map[uuid.UUID]struct{}
	// deliveryID -> the single courier publisher connection
	publishers map[uuid.UUID]uuid.UUID
}

func newRegistry() *registry {
	return &registry{
		byDelivery: make(map[uuid.UUID]map[uuid.UUID]types.SubscriptionRole),
		byConn:     make(map[uuid.UUID]map[uuid.UUID]struct{}),
		publishers: make(map[uuid.UUID]uuid.UUID),
	}
}

// subscribe registers a (connection, delivery) pair. Re-subscribing the same
// pair with the same role is a no-op. A second courier publisher for the same
// delivery is rejected with ErrPublisherConflict.
func (r *registry) subscribe(connID, deliveryID uuid.UUID, role types.SubscriptionRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if role == types.RoleCourierPublisher {
		if existing, ok := r.publishers[deliveryID]; ok && existing != connID {
			return types.ErrPublisherConflict
		}
		r.publishers[deliveryID] = connID
	}

	if r.byDelivery[deliveryID] == nil {
		r.byDelivery[deliveryID] = make(map[uuid.UUID]types.SubscriptionRole)
	}
	r.byDelivery[deliveryID][connID] = role

	if r.byConn[connID] == nil {
		r.byConn[connID] = make(map[uuid.UUID]struct{})
	}
	r.byConn[connID][deliveryID] = struct{}{}

	return nil
}

// unsubscribe removes one (connection, delivery) pair. Unknown pairs are a
// no-op so teardown paths never have to check first.
func (r *registry) unsubscribe(connID, deliveryID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(connID, deliveryID)
}

// dropConn removes every subscription held by the connection and returns the
// deliveries it was watching.
func (r *registry) dropConn(connID uuid.UUID) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	deliveries := make([]uuid.UUID, 0, len(r.byConn[connID]))
	for deliveryID := range r.byConn[connID] {
		deliveries = append(deliveries, deliveryID)
	}
	for _, deliveryID := range deliveries {
		r.removeLocked(connID, deliveryID)
	}
	return deliveries
}

func (r *registry) removeLocked(connID, deliveryID uuid.UUID) {
	if subs, ok := r.byDelivery[deliveryID]; ok {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(r.byDelivery, deliveryID)
		}
	}
	if ds, ok := r.byConn[connID]; ok {
		delete(ds, deliveryID)
		if len(ds) == 0 {
			delete(r.byConn, connID)
		}
	}
	if r.publishers[deliveryID] == connID {
		delete(r.publishers, deliveryID)
	}
}

// subscribersOf returns a snapshot of the connections watching a delivery.
func (r *registry) subscribersOf(deliveryID uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]uuid.UUID, 0, len(r.byDelivery[deliveryID]))
	for connID := range r.byDelivery[deliveryID] {
		out = append(out, connID)
	}
	return out
}

// publisherOf returns the courier publisher connection for the delivery.
func (r *registry) publisherOf(deliveryID uuid.UUID) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.publishers[deliveryID]
	return connID, ok
}

func (r *registry) isSubscribed(connID, deliveryID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byDelivery[deliveryID][connID]
	return ok
}
