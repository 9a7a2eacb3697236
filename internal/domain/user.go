// Package domain contains entity types without logic, just meta-data
// and small invariant helpers shared by every layer.
package domain

import (
	"errors"
	"regexp"
	"time"
)

const (
	MaxUsernameLen = 36

	// DefaultAvatarURL is served for profiles that never uploaded one.
	DefaultAvatarURL = "/static/avatars/default.png"

	// OnlineWindow is how recent a last-seen timestamp must be for a
	// user to count as online in the roster.
	OnlineWindow = 60 * time.Second
)

var (
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameInvalid = errors.New("username has invalid characters")
)

// Hyphens are reserved: direct-room slugs join two usernames with "-",
// so a username containing one would make the slug ambiguous.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)

func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	if !usernamePattern.MatchString(name) {
		return ErrUsernameInvalid
	}
	return nil
}

// Profile is the identity record the roster and broadcasts draw from.
// Authentication itself lives behind the http adapter.
type Profile struct {
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	LastSeen  time.Time `json:"-"`
}

func (p *Profile) Avatar() string {
	if p.AvatarURL == "" {
		return DefaultAvatarURL
	}
	return p.AvatarURL
}

func (p *Profile) Online(now time.Time) bool {
	if p.LastSeen.IsZero() {
		return false
	}
	return now.Sub(p.LastSeen) < OnlineWindow
}

// LastSeenText renders the roster's last-seen label.
func (p *Profile) LastSeenText() string {
	if p.LastSeen.IsZero() {
		return "Never"
	}
	return p.LastSeen.Format("Jan 02 at 15:04")
}
