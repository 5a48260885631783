package store

import "time"

// Turn is one user-message/agent-response exchange. Turns are append-only:
// they are never updated after creation, only read or deleted in bulk per user.
type Turn struct {
	ID            string    `json:"id"` // UUID
	UserID        string    `json:"user_id"`
	Timestamp     time.Time `json:"timestamp"`
	UserMessage   string    `json:"user_message"`
	AgentResponse string    `json:"agent_response"`
	Context       string    `json:"context,omitempty"`
	SessionID     string    `json:"session_id"`
}

// LeadStatus is the lifecycle stage of a lead.
type LeadStatus string

const (
	StatusNew        LeadStatus = "new"
	StatusCollecting LeadStatus = "collecting"
	StatusConfirming LeadStatus = "confirming"
	StatusConfirmed  LeadStatus = "confirmed"
	StatusExit       LeadStatus = "exit"
)

// Terminal reports whether the status is an end state for the session.
func (s LeadStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusExit
}

// Lead is a prospective customer record filled incrementally during
// conversation. Age is kept as free text; leads type it in all sorts of ways.
type Lead struct {
	LeadID          string     `json:"lead_id"`
	Name            string     `json:"name"`
	Age             string     `json:"age"`
	Country         string     `json:"country"`
	ProductInterest string     `json:"product_interest"`
	Status          LeadStatus `json:"status"`
	SessionID       string     `json:"session_id"`
	LastActivity    time.Time  `json:"last_activity"`
	FollowUpCount   int        `json:"follow_up_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsComplete reports whether all required fields are filled. Age is
// collected when offered but not required for confirmation.
func (l *Lead) IsComplete() bool {
	return l.Name != "" && l.Country != "" && l.ProductInterest != ""
}

// MissingFields returns the required fields that are still empty.
func (l *Lead) MissingFields() []string {
	var missing []string
	if l.Name == "" {
		missing = append(missing, "name")
	}
	if l.Country == "" {
		missing = append(missing, "country")
	}
	if l.ProductInterest == "" {
		missing = append(missing, "product interest")
	}
	return missing
}

// FollowUp is a proactive nudge generated for an inactive lead. Undelivered
// rows are drained by the follow-up poll endpoint.
type FollowUp struct {
	ID        int64     `json:"id"`
	LeadID    string    `json:"lead_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Delivered bool      `json:"delivered"`
}
