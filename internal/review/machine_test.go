package review

import (
	"errors"
	"testing"

	"subservient/internal/services"
)

func machineEntries() []Entry {
	return []Entry{
		{Video: "/lib/a.mkv", Language: "en", Query: "a"},
		{Video: "/lib/a.mkv", Language: "nl", Query: "a"},
		{Video: "/lib/b.mkv", Language: "en", Query: "b"},
	}
}

func TestMachineSkipOnceAdvancesWithoutEffects(t *testing.T) {
	m := NewMachine(machineEntries(), 10)
	effects, err := m.Apply(Input{Action: ActionSkipOnce})
	if err != nil || len(effects) != 0 {
		t.Fatalf("Apply = %v, %v", effects, err)
	}
	if i, total := m.Progress(); i != 2 || total != 3 {
		t.Fatalf("progress = %d/%d", i, total)
	}
}

func TestMachineSkipPermanentNeedsConfirmation(t *testing.T) {
	m := NewMachine(machineEntries(), 10)
	_, err := m.Apply(Input{Action: ActionSkipPermanent})
	if !errors.Is(err, ErrConfirmationRequired) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected confirmation error, got %v", err)
	}
	if i, _ := m.Progress(); i != 1 {
		t.Fatal("rejected input must not advance")
	}
	effects, err := m.Apply(Input{Action: ActionSkipPermanent, Confirmed: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(effects) != 2 || effects[0].Kind != EffectSkip || effects[1].Kind != EffectDequeue {
		t.Fatalf("unexpected effects %+v", effects)
	}
}

func TestMachineRaiseLimitBounds(t *testing.T) {
	m := NewMachine(machineEntries(), 10)
	for _, bad := range []int{0, 10, 51} {
		if _, err := m.Apply(Input{Action: ActionRaiseLimit, Limit: bad}); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("limit %d: expected validation error, got %v", bad, err)
		}
	}
	effects, err := m.Apply(Input{Action: ActionRaiseLimit, Limit: 50})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if effects[0].Kind != EffectRaiseLimit || effects[0].Limit != 50 {
		t.Fatalf("unexpected effects %+v", effects)
	}
	if !m.RestartRequested() || !m.Done() {
		t.Fatal("raising the limit must end the session with a restart")
	}
	if m.Limit() != 50 {
		t.Fatalf("limit = %d", m.Limit())
	}
}

func TestMachineOptionsHideRaiseAtCeiling(t *testing.T) {
	m := NewMachine(machineEntries(), 50)
	for _, a := range m.Options() {
		if a == ActionRaiseLimit {
			t.Fatal("raise limit offered at the ceiling")
		}
	}
	if len(NewMachine(machineEntries(), 20).Options()) != 6 {
		t.Fatal("expected every action below the ceiling")
	}
}

func TestMachineDeleteVideoDropsItsOtherLanguages(t *testing.T) {
	m := NewMachine(machineEntries(), 10)
	effects, err := m.Apply(Input{Action: ActionDeleteVideo})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(effects) != 2 || effects[0].Kind != EffectDeleteVideo || effects[1].Kind != EffectDequeueVideo {
		t.Fatalf("unexpected effects %+v", effects)
	}
	current, ok := m.Current()
	if !ok || current.Video != "/lib/b.mkv" {
		t.Fatalf("current = %+v", current)
	}
	if _, total := m.Progress(); total != 2 {
		t.Fatalf("total = %d", total)
	}
}

func TestMachineManualQueryWaitsForReport(t *testing.T) {
	m := NewMachine(machineEntries(), 10)
	if _, err := m.Apply(Input{Action: ActionManualQuery, Query: "   "}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected empty query rejection, got %v", err)
	}
	effects, err := m.Apply(Input{Action: ActionManualQuery, Query: " Heat   1995 "})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(effects) != 1 || effects[0].Kind != EffectManualSearch || effects[0].Query != "Heat 1995" {
		t.Fatalf("unexpected effects %+v", effects)
	}
	if _, err := m.Apply(Input{Action: ActionSkipOnce}); err == nil {
		t.Fatal("expected error while a search is pending")
	}

	if effects := m.Report(false); len(effects) != 0 {
		t.Fatalf("unresolved report must not dequeue: %+v", effects)
	}
	current, _ := m.Current()
	if current.Query != "Heat 1995" || current.Language != "en" {
		t.Fatalf("entry should stay current with the new query: %+v", current)
	}

	if _, err := m.Apply(Input{Action: ActionManualQuery, Query: "Heat"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	effects = m.Report(true)
	if len(effects) != 1 || effects[0].Kind != EffectDequeue {
		t.Fatalf("resolved report must dequeue: %+v", effects)
	}
	if current, _ := m.Current(); current.Language != "nl" {
		t.Fatalf("expected to move on, current = %+v", current)
	}
}

func TestMachineQuitAndExhaustion(t *testing.T) {
	m := NewMachine(machineEntries()[:1], 10)
	if _, err := m.Apply(Input{Action: ActionSkipOnce}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !m.Done() {
		t.Fatal("expected done after the last entry")
	}
	if _, err := m.Apply(Input{Action: ActionSkipOnce}); err == nil {
		t.Fatal("expected error with nothing left")
	}

	m = NewMachine(machineEntries(), 10)
	if _, err := m.Apply(Input{Action: ActionQuit}); err != nil || !m.Done() || m.RestartRequested() {
		t.Fatalf("quit: err=%v done=%v", err, m.Done())
	}
}
