package core

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Bus fans events out to every handle registered under a group name.
// Delivery is fire-and-forget per handle: a slow or dead member is
// dropped from that send, never blocking the rest.
type Bus struct {
	mu     sync.RWMutex
	groups map[string]map[Handle]struct{}
}

func NewBus() *Bus {
	return &Bus{groups: make(map[string]map[Handle]struct{})}
}

func (b *Bus) GroupAdd(groupName string, h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[groupName]
	if !ok {
		g = make(map[Handle]struct{})
		b.groups[groupName] = g
	}
	g[h] = struct{}{}
}

func (b *Bus) GroupDiscard(groupName string, h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[groupName]
	if !ok {
		return
	}
	delete(g, h)
	if len(g) == 0 {
		delete(b.groups, groupName)
	}
}

// GroupSend delivers v to the handles in the group at send time.
// Handles joining after the snapshot is taken are not guaranteed
// delivery of this event.
func (b *Bus) GroupSend(groupName string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.bus").Msg("marshal event")
		return
	}

	b.mu.RLock()
	targets := make([]Handle, 0, len(b.groups[groupName]))
	for h := range b.groups[groupName] {
		targets = append(targets, h)
	}
	b.mu.RUnlock()

	dropped := 0
	for _, h := range targets {
		if err := h.TrySend(data); err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		log.Debug().Str("module", "core.bus").Str("group", groupName).Int("sent_to", len(targets)-dropped).Int("dropped", dropped).Msg("broadcast result")
	}
}

// Send delivers v to a single handle. Used for forced disconnects and
// targeted status updates.
func (b *Bus) Send(h Handle, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.bus").Msg("marshal event")
		return
	}
	_ = h.TrySend(data)
}
