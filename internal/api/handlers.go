package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/veloria/leadchat/internal/core"
	"github.com/veloria/leadchat/internal/memory"
	"github.com/veloria/leadchat/internal/store"
)

type APIHandler struct {
	orch      *core.Orchestrator
	scheduler *core.FollowUpScheduler
	memory    *memory.Service
	store     *store.SQLiteStore
	provider  string
}

func NewAPIHandler(orch *core.Orchestrator, scheduler *core.FollowUpScheduler, mem *memory.Service, st *store.SQLiteStore, provider string) *APIHandler {
	return &APIHandler{
		orch:      orch,
		scheduler: scheduler,
		memory:    mem,
		store:     st,
		provider:  provider,
	}
}

type startConversationResponse struct {
	Lead            *store.Lead `json:"lead"`
	ConversationURL string      `json:"conversation_url"`
}

// StartConversationHandler creates a lead on first contact or reopens an
// existing one. A lead in a terminal state gets a fresh session and starts
// over; an active lead is returned as-is.
func (h *APIHandler) StartConversationHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	leadID := r.FormValue("lead_id")
	name := r.FormValue("name")
	if leadID == "" || name == "" {
		http.Error(w, "lead_id and name are required", http.StatusBadRequest)
		return
	}

	lead, err := h.store.GetLead(leadID)
	if err != nil {
		log.Printf("Error loading lead %s: %v", leadID, err)
		http.Error(w, "Failed to load lead", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	switch {
	case lead == nil:
		lead = &store.Lead{
			LeadID:    leadID,
			Name:      name,
			Status:    store.StatusNew,
			SessionID: uuid.NewString(),
		}
		if err := h.store.CreateLead(lead); err != nil {
			log.Printf("Error creating lead %s: %v", leadID, err)
			http.Error(w, "Failed to create lead", http.StatusInternalServerError)
			return
		}
		status = http.StatusCreated
	case lead.Status.Terminal():
		// Fresh session: the lead starts over but keeps collected details so
		// we never re-ask what we already know.
		lead.SessionID = uuid.NewString()
		lead.Status = store.StatusNew
		lead.Name = name
		lead.FollowUpCount = 0
		lead.LastActivity = time.Now()
		if err := h.store.UpdateLead(lead); err != nil {
			log.Printf("Error reopening lead %s: %v", leadID, err)
			http.Error(w, "Failed to reopen lead", http.StatusInternalServerError)
			return
		}
	default:
		lead.LastActivity = time.Now()
		if err := h.store.UpdateLead(lead); err != nil {
			log.Printf("Error touching lead %s: %v", leadID, err)
			http.Error(w, "Failed to update lead", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(startConversationResponse{
		Lead:            lead,
		ConversationURL: "/conversation/" + lead.LeadID,
	})
}

// GetConversationHandler returns the lead's history in chronological order.
func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")

	lead, err := h.store.GetLead(leadID)
	if err != nil {
		log.Printf("Error loading lead %s: %v", leadID, err)
		http.Error(w, "Failed to load lead", http.StatusInternalServerError)
		return
	}
	if lead == nil {
		http.Error(w, "Lead not found", http.StatusNotFound)
		return
	}

	turns, err := h.memory.History(leadID, 100)
	if err != nil {
		log.Printf("Error loading history for lead %s: %v", leadID, err)
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []store.Turn{}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"lead":  lead,
		"turns": turns,
	})
}

// PostMessageHandler runs the orchestrator for one user message.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	message := r.FormValue("message")
	if message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	reply, err := h.orch.HandleMessage(r.Context(), leadID, message)
	if err != nil {
		if errors.Is(err, core.ErrLeadNotFound) {
			http.Error(w, "Lead not found", http.StatusNotFound)
			return
		}
		log.Printf("Error handling message for lead %s: %v", leadID, err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(reply)
}

// CheckFollowUpHandler is the polling endpoint that doubles as the follow-up
// scheduler's due-check trigger.
func (h *APIHandler) CheckFollowUpHandler(w http.ResponseWriter, r *http.Request) {
	leadID := r.URL.Query().Get("lead_id")
	if leadID == "" {
		http.Error(w, "lead_id is required", http.StatusBadRequest)
		return
	}

	message, due, err := h.scheduler.Check(r.Context(), leadID)
	if err != nil {
		log.Printf("Error checking follow-up for lead %s: %v", leadID, err)
		http.Error(w, "Failed to check follow-up", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{"has_follow_up": due}
	if due {
		resp["message"] = message
	}
	json.NewEncoder(w).Encode(resp)
}

// ConversationHistoryHandler returns ordered turns for a user.
func (h *APIHandler) ConversationHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	turns, err := h.memory.History(userID, limit)
	if err != nil {
		log.Printf("Error loading history for user %s: %v", userID, err)
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []store.Turn{}
	}
	json.NewEncoder(w).Encode(turns)
}

// ClearConversationHistoryHandler deletes a user's turns and embedding records.
func (h *APIHandler) ClearConversationHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	deleted, err := h.memory.ClearUser(userID)
	if err != nil {
		log.Printf("Error clearing history for user %s: %v", userID, err)
		http.Error(w, "Failed to clear history", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]int64{"deleted": deleted})
}

func (h *APIHandler) ListLeadsHandler(w http.ResponseWriter, r *http.Request) {
	leads, err := h.store.ListLeads()
	if err != nil {
		log.Printf("Error listing leads: %v", err)
		http.Error(w, "Failed to list leads", http.StatusInternalServerError)
		return
	}
	if leads == nil {
		leads = []store.Lead{}
	}
	json.NewEncoder(w).Encode(leads)
}

func (h *APIHandler) GetLeadHandler(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")

	lead, err := h.store.GetLead(leadID)
	if err != nil {
		log.Printf("Error loading lead %s: %v", leadID, err)
		http.Error(w, "Failed to load lead", http.StatusInternalServerError)
		return
	}
	if lead == nil {
		http.Error(w, "Lead not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(lead)
}

// HealthHandler reports storage availability, the active LLM provider and
// lead counts by status.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	dbOK := h.store.Ping() == nil

	stats, err := h.store.LeadStatusCounts()
	if err != nil {
		log.Printf("Error reading lead statistics: %v", err)
		stats = map[string]int{}
	}

	status := http.StatusOK
	if !dbOK {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"database":     dbOK,
		"llm_provider": h.provider,
		"leads":        stats,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
