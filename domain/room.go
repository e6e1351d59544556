package domain

import (
	"fmt"
	"time"

	"panel-lab/errors"

	"github.com/samber/lo"
)

const (
	DefaultMaxCohosts  = 3
	DefaultMaxSpeakers = 8
)

type PanelID string

// PanelInfo is the metadata a hub shares with every joining peer.
type PanelInfo struct {
	ID          PanelID   `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	HostID      string    `json:"hostId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Limits caps the number of privileged participants in a panel.
type Limits struct {
	MaxCohosts  int
	MaxSpeakers int
}

func DefaultLimits() Limits {
	return Limits{MaxCohosts: DefaultMaxCohosts, MaxSpeakers: DefaultMaxSpeakers}
}

// Roster is the ordered list of participants of a panel.
// At the hub it is authoritative and patched by its own handlers only,
// everywhere else it is a mirror replaced wholesale by Replace.
type Roster struct {
	limits       Limits
	participants []Participant
}

// NewRoster creates a roster whose first member is the host.
func NewRoster(host Participant, limits Limits) *Roster {
	host.Role = RoleHost
	host.HandRaised = false
	return &Roster{limits: limits, participants: []Participant{host}}
}

// NewMirror creates an empty roster that only follows hub updates.
func NewMirror(limits Limits) *Roster {
	return &Roster{limits: limits}
}

func (r *Roster) Limits() Limits { return r.limits }

// Participants returns a copy, callers cannot alter the roster through it.
func (r *Roster) Participants() []Participant {
	out := make([]Participant, len(r.participants))
	copy(out, r.participants)
	return out
}

func (r *Roster) Len() int { return len(r.participants) }

func (r *Roster) Get(id string) (Participant, bool) {
	return lo.Find(r.participants, func(p Participant) bool { return p.ID == id })
}

func (r *Roster) ByPeer(peerID string) (Participant, bool) {
	return lo.Find(r.participants, func(p Participant) bool { return p.PeerID == peerID })
}

func (r *Roster) Host() (Participant, bool) {
	return lo.Find(r.participants, func(p Participant) bool { return p.Role == RoleHost })
}

func (r *Roster) Count(role Role) int {
	return lo.CountBy(r.participants, func(p Participant) bool { return p.Role == role })
}

// Add inserts a participant unless its id is already known, in which case the
// existing entry wins and only its peer binding is refreshed.
// It reports whether a new entry was created.
func (r *Roster) Add(p Participant) bool {
	if i := r.index(p.ID); i >= 0 {
		r.participants[i].PeerID = p.PeerID
		return false
	}
	if p.Role == RoleHost {
		p.Role = RoleListener
	}
	if p.Role != RoleListener {
		p.HandRaised = false
	}
	r.participants = append(r.participants, p)
	return true
}

// Remove deletes a participant. The host is never removed this way.
func (r *Roster) Remove(id string) (Participant, bool) {
	i := r.index(id)
	if i < 0 || r.participants[i].Role == RoleHost {
		return Participant{}, false
	}
	removed := r.participants[i]
	r.participants = append(r.participants[:i], r.participants[i+1:]...)
	return removed, true
}

func (r *Roster) SetHand(id string, raised bool) error {
	i := r.index(id)
	if i < 0 {
		return errors.ErrParticipantNotFound
	}
	if raised && r.participants[i].Role != RoleListener {
		return errors.ErrNotListener
	}
	r.participants[i].HandRaised = raised
	return nil
}

// CanPromote checks the capacity rule before a promoting message is sent.
func (r *Roster) CanPromote(id string, to Role) error {
	i := r.index(id)
	if i < 0 {
		return errors.ErrParticipantNotFound
	}
	current := r.participants[i].Role
	switch to {
	case RoleSpeaker:
		if current != RoleListener {
			return errors.ErrNotListener
		}
		if r.Count(RoleSpeaker) >= r.limits.MaxSpeakers {
			return errors.ErrSpeakersFull
		}
	case RoleCohost:
		if current == RoleHost {
			return errors.ErrHostImmutable
		}
		if current != RoleListener && current != RoleSpeaker {
			return errors.ErrInvalidTransition
		}
		if r.Count(RoleCohost) >= r.limits.MaxCohosts {
			return errors.ErrCohostsFull
		}
	default:
		return errors.ErrInvalidTransition
	}
	return nil
}

// Promote applies a listener→speaker or listener|speaker→cohost transition.
func (r *Roster) Promote(id string, to Role) error {
	if err := r.CanPromote(id, to); err != nil {
		return err
	}
	i := r.index(id)
	r.participants[i].Role = to
	r.participants[i].HandRaised = false
	return nil
}

func (r *Roster) SetMuted(id string, muted bool) error {
	i := r.index(id)
	if i < 0 {
		return errors.ErrParticipantNotFound
	}
	r.participants[i].Muted = muted
	return nil
}

// Replace swaps the whole roster for the hub's latest version.
func (r *Roster) Replace(participants []Participant) {
	r.participants = make([]Participant, len(participants))
	copy(r.participants, participants)
}

// Validate checks the panel invariants.
func (r *Roster) Validate() error {
	if n := r.Count(RoleHost); n != 1 {
		return fmt.Errorf("%w: %d hosts", errors.ErrInvalidRole, n)
	}
	if r.Count(RoleCohost) > r.limits.MaxCohosts {
		return errors.ErrCohostsFull
	}
	if r.Count(RoleSpeaker) > r.limits.MaxSpeakers {
		return errors.ErrSpeakersFull
	}
	ids := make(map[string]struct{}, len(r.participants))
	for _, p := range r.participants {
		if p.HandRaised && p.Role != RoleListener {
			return fmt.Errorf("%w: %s has a raised hand as %s", errors.ErrInvalidTransition, p.ID, p.Role)
		}
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("%w: %s", errors.ErrAlreadyInRoster, p.ID)
		}
		ids[p.ID] = struct{}{}
	}
	return nil
}

func (r *Roster) index(id string) int {
	_, i, ok := lo.FindIndexOf(r.participants, func(p Participant) bool { return p.ID == id })
	if !ok {
		return -1
	}
	return i
}
