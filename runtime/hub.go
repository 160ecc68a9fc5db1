package runtime

import (
	"log/slog"
	"meet-relay/domain"
	"time"
)

// Hub bundles the connection state of one feature.
type Hub struct {
	Feature  domain.Feature
	Registry *Registry
	Presence *PresenceIndex
	*Fanout
}

func NewHub(log *slog.Logger, feature domain.Feature, sinkTimeout time.Duration) *Hub {
	registry := NewRegistry(feature)
	presence := NewPresenceIndex(feature)
	return &Hub{
		Feature:  feature,
		Registry: registry,
		Presence: presence,
		Fanout:   NewFanout(log.With("feature", feature), registry, presence, sinkTimeout),
	}
}

// Stats is a point-in-time view used for reporting.
type Stats struct {
	Feature     domain.Feature
	Rooms       int
	Connections int
}

func (h *Hub) Stats() Stats {
	return Stats{Feature: h.Feature, Rooms: h.Presence.Rooms(), Connections: h.Registry.Len()}
}
