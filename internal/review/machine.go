package review

import (
	"errors"
	"fmt"
	"strings"

	"subservient/internal/config"
	"subservient/internal/services"
)

// ErrConfirmationRequired is returned when a permanent skip arrives
// without the operator's confirmation.
var ErrConfirmationRequired = errors.New("permanent skip needs confirmation")

// Action is one operator choice for the current entry.
type Action int

const (
	ActionManualQuery Action = iota + 1
	ActionDeleteVideo
	ActionRaiseLimit
	ActionSkipOnce
	ActionSkipPermanent
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionManualQuery:
		return "manual query"
	case ActionDeleteVideo:
		return "delete video"
	case ActionRaiseLimit:
		return "raise search limit"
	case ActionSkipOnce:
		return "skip for now"
	case ActionSkipPermanent:
		return "skip permanently"
	case ActionQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Input carries an action and the values it needs.
type Input struct {
	Action    Action
	Query     string
	Limit     int
	Confirmed bool
}

// EffectKind names a side effect the machine asks its caller to perform.
type EffectKind int

const (
	EffectManualSearch EffectKind = iota + 1
	EffectDeleteVideo
	EffectRaiseLimit
	EffectSkip
	EffectDequeue
	EffectDequeueVideo
)

// Effect is one requested side effect. Entry is the entry it applies to.
type Effect struct {
	Kind  EffectKind
	Entry Entry
	Query string
	Limit int
}

// Machine walks the review queue one entry at a time. It performs no I/O:
// every change to the outside world comes back as an Effect.
type Machine struct {
	entries []Entry
	pos     int
	limit   int
	restart bool
	quit    bool
	// awaiting is set while a manual search is out; the entry stays current
	// until Report says how it went.
	awaiting bool
}

// NewMachine starts a session over entries with the current search limit.
func NewMachine(entries []Entry, currentLimit int) *Machine {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Machine{entries: cp, limit: currentLimit}
}

// Current returns the entry awaiting a decision.
func (m *Machine) Current() (Entry, bool) {
	if m.Done() {
		return Entry{}, false
	}
	return m.entries[m.pos], true
}

// Progress returns the 1-based position and the total, for "[i/total]".
func (m *Machine) Progress() (int, int) {
	return min(m.pos+1, len(m.entries)), len(m.entries)
}

// Done reports whether the session has nothing left to decide.
func (m *Machine) Done() bool {
	return m.quit || m.restart || m.pos >= len(m.entries)
}

// RestartRequested reports whether the limit was raised, in which case the
// pipeline must start over so every pending pair sees the new limit.
func (m *Machine) RestartRequested() bool {
	return m.restart
}

// Limit is the search limit as this session knows it.
func (m *Machine) Limit() int {
	return m.limit
}

// Options lists the actions valid for the current entry, in menu order.
func (m *Machine) Options() []Action {
	if m.Done() {
		return nil
	}
	options := []Action{ActionManualQuery, ActionDeleteVideo}
	if m.limit < config.MaxSearchResultsCeiling {
		options = append(options, ActionRaiseLimit)
	}
	return append(options, ActionSkipOnce, ActionSkipPermanent, ActionQuit)
}

// Apply validates in against the current entry, advances the session and
// returns the effects to perform. An invalid input leaves the machine as it
// was.
func (m *Machine) Apply(in Input) ([]Effect, error) {
	entry, ok := m.Current()
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "review", "apply", "no entry awaiting a decision", nil)
	}
	if m.awaiting {
		return nil, services.Wrap(services.ErrValidation, "review", "apply", "manual search still pending", nil)
	}
	switch in.Action {
	case ActionManualQuery:
		query := strings.Join(strings.Fields(in.Query), " ")
		if query == "" {
			return nil, services.Wrap(services.ErrValidation, "review", "manual query", "query is empty", nil)
		}
		m.entries[m.pos].Query = query
		m.awaiting = true
		return []Effect{{Kind: EffectManualSearch, Entry: m.entries[m.pos], Query: query}}, nil

	case ActionDeleteVideo:
		m.dropVideo(entry.Video)
		return []Effect{
			{Kind: EffectDeleteVideo, Entry: entry},
			{Kind: EffectDequeueVideo, Entry: entry},
		}, nil

	case ActionRaiseLimit:
		if in.Limit <= m.limit || in.Limit > config.MaxSearchResultsCeiling {
			return nil, services.Wrap(services.ErrValidation, "review", "raise limit",
				fmt.Sprintf("limit must be above %d and at most %d", m.limit, config.MaxSearchResultsCeiling), nil)
		}
		m.limit = in.Limit
		m.restart = true
		return []Effect{
			{Kind: EffectRaiseLimit, Entry: entry, Limit: in.Limit},
			{Kind: EffectDequeue, Entry: entry},
		}, nil

	case ActionSkipOnce:
		m.pos++
		return nil, nil

	case ActionSkipPermanent:
		if !in.Confirmed {
			return nil, services.Wrap(services.ErrValidation, "review", "skip", entry.Video, ErrConfirmationRequired)
		}
		m.pos++
		return []Effect{
			{Kind: EffectSkip, Entry: entry},
			{Kind: EffectDequeue, Entry: entry},
		}, nil

	case ActionQuit:
		m.quit = true
		return nil, nil
	}
	return nil, services.Wrap(services.ErrValidation, "review", "apply", fmt.Sprintf("unknown action %d", in.Action), nil)
}

// Report closes a pending manual search. A resolved pair leaves the queue
// and the session moves on; otherwise the entry stays current with its new
// query so the operator can try again or pick another action.
func (m *Machine) Report(resolved bool) []Effect {
	if !m.awaiting {
		return nil
	}
	m.awaiting = false
	if !resolved {
		return nil
	}
	entry := m.entries[m.pos]
	m.pos++
	return []Effect{{Kind: EffectDequeue, Entry: entry}}
}

// dropVideo removes the current entry and any later entries of the same
// video; the file is going away, so its other languages are moot too.
func (m *Machine) dropVideo(video string) {
	kept := append([]Entry(nil), m.entries[:m.pos]...)
	for _, e := range m.entries[m.pos:] {
		if e.Video != video {
			kept = append(kept, e)
		}
	}
	m.entries = kept
}
