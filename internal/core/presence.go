package core

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// group is one room's membership map, guarded independently so traffic
// in one room never contends with another.
type group struct {
	mu      sync.RWMutex
	members map[string]Handle
}

// Presence maps broadcast group -> username -> delivery handle. It is
// process-local, owns no persistence, and lives only as long as the
// connections it tracks.
type Presence struct {
	mu     sync.RWMutex
	groups map[string]*group
}

func NewPresence() *Presence {
	return &Presence{groups: make(map[string]*group)}
}

// Add holds the registry lock through the insert: releasing it first
// would let a concurrent Remove empty the group and drop it from the
// registry, stranding the new member in an orphaned map.
func (p *Presence) Add(groupName, username string, h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[groupName]
	if !ok {
		g = &group{members: make(map[string]Handle)}
		p.groups[groupName] = g
	}
	g.mu.Lock()
	g.members[username] = h
	g.mu.Unlock()
	log.Debug().Str("module", "core.presence").Str("group", groupName).Str("user", username).Msg("member added")
}

// Remove is a no-op for unknown members, so disconnect teardown stays
// idempotent with an earlier kick.
func (p *Presence) Remove(groupName, username string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[groupName]
	if !ok {
		return
	}
	g.mu.Lock()
	delete(g.members, username)
	empty := len(g.members) == 0
	g.mu.Unlock()
	if empty {
		delete(p.groups, groupName)
	}
	log.Debug().Str("module", "core.presence").Str("group", groupName).Str("user", username).Msg("member removed")
}

func (p *Presence) Lookup(groupName, username string) (Handle, bool) {
	p.mu.RLock()
	g, ok := p.groups[groupName]
	p.mu.RUnlock()
	if !ok {
		return nil, false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.members[username]
	return h, ok
}

// Snapshot returns the usernames currently connected to a group.
func (p *Presence) Snapshot(groupName string) []string {
	p.mu.RLock()
	g, ok := p.groups[groupName]
	p.mu.RUnlock()
	if !ok {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.members))
	for name := range g.members {
		out = append(out, name)
	}
	return out
}

func (p *Presence) Count(groupName string) int {
	p.mu.RLock()
	g, ok := p.groups[groupName]
	p.mu.RUnlock()
	if !ok {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}
