package review

import (
	"context"
	"log/slog"

	"subservient/internal/logging"
)

// Effects performs the outside-world part of an operator decision.
type Effects interface {
	// ManualSearch runs the pair through the search ladder from the first
	// rung with query, and reports whether a canonical subtitle came out.
	ManualSearch(ctx context.Context, entry Entry, query string) (bool, error)
	DeleteVideo(ctx context.Context, video string) error
	// RaiseLimit persists the new limit and resets the pair's FAILED
	// entries to DRIFT.
	RaiseLimit(ctx context.Context, entry Entry, limit int) error
	Skip(ctx context.Context, entry Entry) error
}

// Session binds a Machine to the persisted queue and an Effects
// implementation. When an effect fails the session stops applying the rest
// of that decision, so the entry stays queued and comes back next time.
type Session struct {
	machine *Machine
	queue   *Queue
	effects Effects
	logger  *slog.Logger
}

// NewSession loads the queue and starts a Machine over it.
func NewSession(queue *Queue, effects Effects, currentLimit int, logger *slog.Logger) (*Session, error) {
	entries, err := queue.List()
	if err != nil {
		return nil, err
	}
	return &Session{
		machine: NewMachine(entries, currentLimit),
		queue:   queue,
		effects: effects,
		logger:  logging.NewComponentLogger(logger, "review"),
	}, nil
}

func (s *Session) Machine() *Machine {
	return s.machine
}

// Handle applies one operator input.
func (s *Session) Handle(ctx context.Context, in Input) error {
	entry, _ := s.machine.Current()
	effects, err := s.machine.Apply(in)
	if err != nil {
		return err
	}
	s.logger.Info("review decision",
		logging.String(logging.FieldVideo, entry.Video),
		logging.String(logging.FieldLanguage, entry.Language),
		logging.String(logging.FieldEventType, "review_decision"),
		logging.String("action", in.Action.String()),
	)
	return s.perform(ctx, effects)
}

func (s *Session) perform(ctx context.Context, effects []Effect) error {
	for _, effect := range effects {
		if err := s.performOne(ctx, effect); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) performOne(ctx context.Context, effect Effect) error {
	entry := effect.Entry
	switch effect.Kind {
	case EffectManualSearch:
		resolved, err := s.effects.ManualSearch(ctx, entry, effect.Query)
		if err != nil {
			s.machine.Report(false)
			return err
		}
		if !resolved {
			// Keep the operator's query so the next session starts from it.
			if _, err := s.queue.Enqueue(entry); err != nil {
				s.machine.Report(false)
				return err
			}
		}
		return s.perform(ctx, s.machine.Report(resolved))
	case EffectDeleteVideo:
		return s.effects.DeleteVideo(ctx, entry.Video)
	case EffectRaiseLimit:
		return s.effects.RaiseLimit(ctx, entry, effect.Limit)
	case EffectSkip:
		return s.effects.Skip(ctx, entry)
	case EffectDequeue:
		_, err := s.queue.Remove(entry.Video, entry.Language)
		return err
	case EffectDequeueVideo:
		_, err := s.queue.RemoveVideo(entry.Video)
		return err
	}
	return nil
}
