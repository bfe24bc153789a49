package participant

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"poll-service/internal/events"
)

const presenceTimeout = 3 * time.Second

// Presence mirrors who is present into an external store. Failures are logged only.
type Presence interface {
	SetParticipantOnline(ctx context.Context, name string) error
	SetParticipantOffline(ctx context.Context, name string) error
}

// Registry binds connections to display names and pushes the full participant list to
// every client after each change.
type Registry struct {
	mu     sync.Mutex
	byConn map[string]string // connection id -> display name
	byName map[string]string // display name -> connection id
	names  []string          // present names, first-join order

	gateway  events.Gateway
	presence Presence
	logger   *slog.Logger
}

func NewRegistry(gateway events.Gateway, presence Presence, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byConn:   make(map[string]string),
		byName:   make(map[string]string),
		gateway:  gateway,
		presence: presence,
		logger:   logger,
	}
}

// GuestName is the display name given to a connection that joined without one.
func GuestName(connID string) string {
	if len(connID) > 6 {
		connID = connID[:6]
	}
	return "guest_" + connID
}

// Join binds connID to name. A name already bound to another connection moves to connID;
// the old connection keeps its own binding until it leaves.
func (r *Registry) Join(connID, name string) []string {
	if name == "" {
		name = GuestName(connID)
	}

	r.mu.Lock()
	if prev, ok := r.byConn[connID]; ok && prev != name && r.byName[prev] == connID {
		delete(r.byName, prev)
		r.removeName(prev)
	}
	r.byConn[connID] = name
	r.byName[name] = connID
	if !r.hasName(name) {
		r.names = append(r.names, name)
	}
	snapshot := r.snapshot()
	r.gateway.Publish(events.ParticipantsUpdate, snapshot)
	r.mu.Unlock()

	r.mirror(name, true)
	r.logger.Info("Participant joined", "connID", connID, "name", name, "present", len(snapshot))
	return snapshot
}

// Leave drops the binding of connID. The name stays present when it has since been taken
// over by another connection.
func (r *Registry) Leave(connID string) ([]string, bool) {
	r.mu.Lock()
	name, ok := r.byConn[connID]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	delete(r.byConn, connID)
	gone := r.byName[name] == connID
	if gone {
		delete(r.byName, name)
		r.removeName(name)
	}
	snapshot := r.snapshot()
	r.gateway.Publish(events.ParticipantsUpdate, snapshot)
	r.mu.Unlock()

	if gone {
		r.mirror(name, false)
	}
	r.logger.Info("Participant left", "connID", connID, "name", name, "present", len(snapshot))
	return snapshot, true
}

// RemoveByName forcibly removes a participant: the bound connection receives removedNotice
// and is then disconnected, and the updated list is broadcast once.
func (r *Registry) RemoveByName(name string) []string {
	r.mu.Lock()
	connID, bound := r.byName[name]
	if bound {
		delete(r.byName, name)
		delete(r.byConn, connID)
	}
	r.removeName(name)
	r.mu.Unlock()

	if bound {
		if err := r.gateway.PublishTo(connID, events.RemovedNotice, map[string]string{"displayName": name}); err != nil {
			r.logger.Warn("Failed to notify removed participant", "connID", connID, "name", name, "error", err)
		}
		r.gateway.Disconnect(connID)
	}

	r.mu.Lock()
	snapshot := r.snapshot()
	r.gateway.Publish(events.ParticipantsUpdate, snapshot)
	r.mu.Unlock()

	r.mirror(name, false)
	r.logger.Info("Participant removed", "connID", connID, "name", name, "present", len(snapshot))
	return snapshot
}

// Participants returns the present names.
func (r *Registry) Participants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// NameOf returns the display name bound to connID.
func (r *Registry) NameOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.byConn[connID]
	return name, ok
}

func (r *Registry) hasName(name string) bool {
	for _, n := range r.names {
		if n == name {
			return true
		}
	}
	return false
}

func (r *Registry) removeName(name string) {
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			return
		}
	}
}

func (r *Registry) snapshot() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *Registry) mirror(name string, online bool) {
	if r.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	var err error
	if online {
		err = r.presence.SetParticipantOnline(ctx, name)
	} else {
		err = r.presence.SetParticipantOffline(ctx, name)
	}
	if err != nil {
		r.logger.Warn("Failed to mirror participant presence", "name", name, "online", online, "error", err)
	}
}
