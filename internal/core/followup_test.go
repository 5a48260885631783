package core

import (
	"context"
	"testing"
	"time"

	"github.com/veloria/leadchat/internal/llm"
	"github.com/veloria/leadchat/internal/memory"
	"github.com/veloria/leadchat/internal/store"
)

func newTestScheduler(t *testing.T, client llm.Client, threshold time.Duration, maxCount int) (*FollowUpScheduler, *store.SQLiteStore) {
	t.Helper()
	orch, st, _ := newTestOrchestrator(t, client)

	ix, err := memory.NewIndex("")
	if err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}
	mem, err := memory.NewService(st, ix, llm.NewStub(), 5)
	if err != nil {
		t.Fatalf("Failed to create memory service: %v", err)
	}

	return NewFollowUpScheduler(st, mem, orch, threshold, maxCount), st
}

func inactiveLead(t *testing.T, st *store.SQLiteStore, leadID string, since time.Time) *store.Lead {
	t.Helper()
	lead := &store.Lead{
		LeadID:       leadID,
		Name:         "Dana",
		Status:       store.StatusCollecting,
		SessionID:    "session-1",
		LastActivity: since,
	}
	if err := st.CreateLead(lead); err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}
	return lead
}

func TestFollowUpDueAfterInactivity(t *testing.T) {
	sched, st := newTestScheduler(t, &fakeLLM{reply: "Still there, Dana?"}, time.Minute, 3)

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	inactiveLead(t, st, "lead-1", start)
	sched.now = func() time.Time { return start.Add(90 * time.Second) }

	message, ok, err := sched.Check(context.Background(), "lead-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !ok {
		t.Fatal("no follow-up despite inactivity past the threshold")
	}
	if message != "Still there, Dana?" {
		t.Errorf("message = %q, want the generated nudge", message)
	}

	lead, err := st.GetLead("lead-1")
	if err != nil {
		t.Fatalf("GetLead failed: %v", err)
	}
	if lead.FollowUpCount != 1 {
		t.Errorf("follow-up count = %d, want 1", lead.FollowUpCount)
	}
	if !lead.LastActivity.Equal(sched.now()) {
		t.Errorf("nudge did not reset the inactivity clock: %v", lead.LastActivity)
	}

	// The nudge is recorded as a turn for later retrieval.
	count, err := st.CountTurns("lead-1")
	if err != nil {
		t.Fatalf("CountTurns failed: %v", err)
	}
	if count != 1 {
		t.Errorf("got %d turns, want the nudge exchange recorded", count)
	}
}

func TestFollowUpNotDueYet(t *testing.T) {
	sched, st := newTestScheduler(t, llm.NewStub(), time.Minute, 3)

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	inactiveLead(t, st, "lead-1", start)
	sched.now = func() time.Time { return start.Add(30 * time.Second) }

	_, ok, err := sched.Check(context.Background(), "lead-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if ok {
		t.Error("follow-up produced before the threshold elapsed")
	}
}

func TestFollowUpRespectsCap(t *testing.T) {
	sched, st := newTestScheduler(t, llm.NewStub(), time.Minute, 2)

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	inactiveLead(t, st, "lead-1", start)
	clock := start
	sched.now = func() time.Time { return clock }

	for i := 0; i < 2; i++ {
		clock = clock.Add(2 * time.Minute)
		_, ok, err := sched.Check(context.Background(), "lead-1")
		if err != nil {
			t.Fatalf("Check %d failed: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("nudge %d not produced", i+1)
		}
	}

	clock = clock.Add(2 * time.Minute)
	_, ok, err := sched.Check(context.Background(), "lead-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if ok {
		t.Error("nudge produced past the cap")
	}
}

func TestFollowUpSkipsTerminalLeads(t *testing.T) {
	sched, st := newTestScheduler(t, llm.NewStub(), time.Minute, 3)

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for _, status := range []store.LeadStatus{store.StatusConfirmed, store.StatusExit} {
		lead := &store.Lead{LeadID: "lead-" + string(status), Status: status, SessionID: "s", LastActivity: start}
		if err := st.CreateLead(lead); err != nil {
			t.Fatalf("CreateLead failed: %v", err)
		}
	}
	sched.now = func() time.Time { return start.Add(time.Hour) }

	for _, leadID := range []string{"lead-confirmed", "lead-exit"} {
		_, ok, err := sched.Check(context.Background(), leadID)
		if err != nil {
			t.Fatalf("Check(%s) failed: %v", leadID, err)
		}
		if ok {
			t.Errorf("terminal lead %s got a nudge", leadID)
		}
	}
}

func TestFollowUpFallsBackWhenGenerationFails(t *testing.T) {
	sched, st := newTestScheduler(t, &fakeLLM{failures: 10}, time.Minute, 3)

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	inactiveLead(t, st, "lead-1", start)
	sched.now = func() time.Time { return start.Add(time.Hour) }

	message, ok, err := sched.Check(context.Background(), "lead-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !ok {
		t.Fatal("no follow-up despite being due")
	}
	if message == "" {
		t.Error("fallback nudge is empty")
	}
}

func TestFollowUpUnknownLead(t *testing.T) {
	sched, _ := newTestScheduler(t, llm.NewStub(), time.Minute, 3)

	_, ok, err := sched.Check(context.Background(), "no-such-lead")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if ok {
		t.Error("follow-up produced for unknown lead")
	}
}
