package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/veloria/leadchat/internal/memory"
	"github.com/veloria/leadchat/internal/store"
)

// FollowUpScheduler nudges inactive leads. It keeps no goroutine of its own:
// clients poll the follow-up endpoint and Check decides, per lead, whether a
// nudge is due. Terminal leads never get one, so cancellation is implicit.
type FollowUpScheduler struct {
	store     *store.SQLiteStore
	memory    *memory.Service
	orch      *Orchestrator
	threshold time.Duration
	maxCount  int
	now       func() time.Time
}

func NewFollowUpScheduler(st *store.SQLiteStore, mem *memory.Service, orch *Orchestrator, threshold time.Duration, maxCount int) *FollowUpScheduler {
	return &FollowUpScheduler{
		store:     st,
		memory:    mem,
		orch:      orch,
		threshold: threshold,
		maxCount:  maxCount,
		now:       time.Now,
	}
}

// Check returns a follow-up message for the lead if one is queued or due.
// A nudge is due when the lead has been inactive past the threshold, is not
// in a terminal state, and has not hit the nudge cap.
func (s *FollowUpScheduler) Check(ctx context.Context, leadID string) (string, bool, error) {
	// Drain anything generated earlier but never delivered.
	pending, err := s.store.PopPendingFollowUp(leadID)
	if err != nil {
		return "", false, err
	}
	if pending != nil {
		return pending.Message, true, nil
	}

	lead, err := s.store.GetLead(leadID)
	if err != nil {
		return "", false, err
	}
	if lead == nil || lead.Status.Terminal() {
		return "", false, nil
	}
	if lead.FollowUpCount >= s.maxCount {
		return "", false, nil
	}
	if s.now().Sub(lead.LastActivity) < s.threshold {
		return "", false, nil
	}

	base := nudgeText(lead)
	message, err := s.orch.GenerateNudge(ctx, lead, base)
	if err != nil {
		log.Printf("Nudge generation failed for lead %s, using canned text: %v", leadID, err)
		message = base
	}

	// The nudge is an exchange too; losing it would break context continuity.
	if err := s.memory.StoreWithContext(ctx, leadID, base, message, "follow_up", lead.SessionID); err != nil {
		return "", false, err
	}

	id, err := s.store.SaveFollowUp(leadID, message)
	if err != nil {
		return "", false, err
	}
	if err := s.store.MarkFollowUpDelivered(id); err != nil {
		return "", false, err
	}

	lead.FollowUpCount++
	lead.LastActivity = s.now() // the nudge resets the inactivity clock
	if err := s.store.UpdateLead(lead); err != nil {
		return "", false, fmt.Errorf("failed to record follow-up on lead: %w", err)
	}

	return message, true, nil
}
