package sharecrypt

import (
	"fmt"
	"time"
)

// GateState is the admission state of a share. All states except
// StatePasswordRequired are terminal without server-side action.
type GateState int

const (
	StateLoading GateState = iota
	StateDisabled
	StateExpired
	StateViewLimitReached
	StatePasswordRequired
	StateUnlocked
)

func (s GateState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateDisabled:
		return "disabled"
	case StateExpired:
		return "expired"
	case StateViewLimitReached:
		return "view limit reached"
	case StatePasswordRequired:
		return "password required"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// ShareGate evaluates whether a share may be opened. Disqualifying
// conditions are checked in fixed precedence: disabled, then expired, then
// view limit, then password. Only a successful password unlock moves
// StatePasswordRequired forward.
type ShareGate struct {
	share    *Share
	unlocked bool
	now      func() time.Time
}

// NewShareGate builds a gate for the given share record.
func NewShareGate(share *Share) *ShareGate {
	return &ShareGate{share: share, now: time.Now}
}

// State evaluates the gate.
func (g *ShareGate) State() GateState {
	if g.share == nil {
		return StateLoading
	}
	switch {
	case g.share.Disabled:
		return StateDisabled
	case g.share.ExpiresAt != nil && !g.share.ExpiresAt.After(g.now()):
		return StateExpired
	case g.share.ViewLimit > 0 && g.share.Views >= g.share.ViewLimit:
		return StateViewLimitReached
	case g.share.HasPassword() && !g.unlocked:
		return StatePasswordRequired
	default:
		return StateUnlocked
	}
}

// Admit returns nil when the share is unlocked, or the typed error for the
// current state.
func (g *ShareGate) Admit() error {
	switch state := g.State(); state {
	case StateUnlocked:
		return nil
	case StateDisabled:
		return fmt.Errorf("%w: %w", ErrShareUnavailable, ErrShareDisabled)
	case StateExpired:
		return fmt.Errorf("%w: %w", ErrShareUnavailable, ErrShareExpired)
	case StateViewLimitReached:
		return fmt.Errorf("%w: %w", ErrShareUnavailable, ErrViewLimitReached)
	case StatePasswordRequired:
		return ErrPasswordRequired
	default:
		return fmt.Errorf("share is still %s", state)
	}
}

// MarkUnlocked records a successful password unlock for this viewing
// session. It has no effect on the other disqualifying conditions.
func (g *ShareGate) MarkUnlocked() {
	g.unlocked = true
}
