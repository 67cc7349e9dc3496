package trace

import (
	"path/filepath"
	"testing"

	"github.com/codeofpride/drillcore/internal/band"
	"github.com/codeofpride/drillcore/internal/objective"
)

func TestWriteReadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "run-1")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	events := []Event{
		{
			Tick: 0,
			Commands: []band.Command{
				{Kind: band.CmdMove, Member: "DM", X: 3, Y: 10},
			},
			Entities: []band.EntityState{
				{Name: "DM", Section: "LEADERSHIP", X: 3, Y: 10, Active: true},
			},
			Objective: []objective.Result{
				{Name: "dm_on_dot", Verdict: objective.Pending},
			},
			Output: []string{"moving out"},
		},
		{
			Tick: 1,
			Rejected: []band.Rejected{
				{Command: band.Command{Kind: band.CmdMove, Member: "DM", X: 4, Y: 10}, Reason: "dot taken"},
			},
			Entities: []band.EntityState{
				{Name: "DM", Section: "LEADERSHIP", X: 3, Y: 10, Active: true},
			},
			Terminal: true,
			Verdict:  "failure",
			Reason:   "objective_violated",
		},
	}
	for _, ev := range events {
		if err := w.Append(ev); err != nil {
			t.Fatalf("Append tick %d: %v", ev.Tick, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := ReadFile(filepath.Join(dir, "run-1.jsonl.zst"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("read %d events, want %d", len(got), len(events))
	}
	if got[0].Tick != 0 || got[0].Commands[0].Member != "DM" || got[0].Output[0] != "moving out" {
		t.Errorf("event 0 corrupted: %+v", got[0])
	}
	if !got[1].Terminal || got[1].Verdict != "failure" || got[1].Rejected[0].Reason != "dot taken" {
		t.Errorf("event 1 corrupted: %+v", got[1])
	}
}

func TestAppendAfterClose(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "run-2")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Append(Event{Tick: 0}); err == nil {
		t.Fatal("Append after Close should fail")
	}
	// Second Close is a no-op.
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestReadFileMissing(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "nope.jsonl.zst")); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmptyTraceReadsEmpty(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "run-3")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, err := ReadFile(filepath.Join(dir, "run-3.jsonl.zst"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("read %d events, want 0", len(got))
	}
}
