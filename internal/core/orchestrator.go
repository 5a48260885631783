// Package core runs the conversation pipeline: load context, generate a
// reply, store the exchange and advance the lead's state.
package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/veloria/leadchat/internal/export"
	"github.com/veloria/leadchat/internal/llm"
	"github.com/veloria/leadchat/internal/memory"
	"github.com/veloria/leadchat/internal/store"
)

// ErrLeadNotFound means the conversation was never started for this lead.
var ErrLeadNotFound = errors.New("lead not found")

// Orchestrator executes the three-stage pipeline for each inbound message.
type Orchestrator struct {
	store    *store.SQLiteStore
	memory   *memory.Service
	client   llm.Client
	exporter *export.LeadWriter
	topK     int
	docsK    int
}

func NewOrchestrator(st *store.SQLiteStore, mem *memory.Service, client llm.Client, exporter *export.LeadWriter, topK int) *Orchestrator {
	return &Orchestrator{
		store:    st,
		memory:   mem,
		client:   client,
		exporter: exporter,
		topK:     topK,
		docsK:    3,
	}
}

// Reply is the outcome of one handled message.
type Reply struct {
	Text string      `json:"reply"`
	Lead *store.Lead `json:"lead"`
}

// HandleMessage runs the pipeline for one user message. Upstream failures
// degrade to a fallback reply; storage failures are returned to the caller
// because silently losing a turn would corrupt later retrieval.
func (o *Orchestrator) HandleMessage(ctx context.Context, leadID, message string) (*Reply, error) {
	lead, err := o.store.GetLead(leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	if lead == nil {
		return nil, ErrLeadNotFound
	}

	if IsExitMessage(message) {
		return o.finishExchange(ctx, lead, message, farewellText, store.StatusExit)
	}

	if lead.Status == store.StatusConfirming && isConfirmMessage(message) {
		// Export before flipping the status so a failed export leaves the
		// lead in confirming, with confirmation still reachable.
		confirmed := *lead
		confirmed.Status = store.StatusConfirmed
		if err := o.exporter.Append(&confirmed); err != nil {
			return nil, fmt.Errorf("failed to export confirmed lead: %w", err)
		}
		return o.finishExchange(ctx, lead, message, confirmedText, store.StatusConfirmed)
	}

	status := lead.Status
	if status == store.StatusNew {
		status = store.StatusCollecting
	}

	// Stage 1: load context.
	contextBlock := o.loadContext(ctx, lead, message)

	// Stage 2: generate, with one retry and a canned fallback.
	replyText := o.generate(ctx, lead, message, contextBlock)

	// Parse-directed extraction from both halves of the exchange; fields
	// already collected are never overwritten.
	applyDetails(lead, ExtractDetails(message))
	applyDetails(lead, ExtractDetails(replyText))

	if status == store.StatusCollecting && lead.IsComplete() {
		status = store.StatusConfirming
		replyText = strings.TrimSpace(replyText) + "\n\n" + confirmationSummary(lead)
	}

	// Stage 3: store.
	return o.finishExchange(ctx, lead, message, replyText, status)
}

// finishExchange persists the turn and the updated lead. Both writes are
// hard failures for the request.
func (o *Orchestrator) finishExchange(ctx context.Context, lead *store.Lead, message, replyText string, status store.LeadStatus) (*Reply, error) {
	if err := o.memory.Store(ctx, lead.LeadID, message, replyText, lead.SessionID); err != nil {
		return nil, err
	}

	lead.Status = status
	lead.LastActivity = time.Now()
	if err := o.store.UpdateLead(lead); err != nil {
		return nil, fmt.Errorf("failed to update lead: %w", err)
	}

	return &Reply{Text: replyText, Lead: lead}, nil
}

// loadContext retrieves relevant past turns and company documents and formats
// them into a context block. Retrieval problems degrade to an empty block;
// storage-level failures inside Retrieve already logged and degraded there.
func (o *Orchestrator) loadContext(ctx context.Context, lead *store.Lead, query string) string {
	var parts []string

	turns, err := o.memory.Retrieve(ctx, lead.LeadID, query, o.topK)
	if err != nil {
		log.Printf("Context retrieval failed for lead %s: %v", lead.LeadID, err)
	} else if len(turns) > 0 {
		parts = append(parts, "Relevant past conversation:")
		for _, t := range turns {
			parts = append(parts, fmt.Sprintf("User: %s", t.UserMessage))
			parts = append(parts, fmt.Sprintf("Agent: %s", t.AgentResponse))
		}
		parts = append(parts, "")
	}

	if docs := o.memory.RetrieveDocuments(ctx, query, o.docsK); len(docs) > 0 {
		parts = append(parts, "Company information:")
		parts = append(parts, docs...)
		parts = append(parts, "")
	}

	return strings.Join(parts, "\n")
}

func (o *Orchestrator) generate(ctx context.Context, lead *store.Lead, message, contextBlock string) string {
	prompt := buildPrompt(lead, message, contextBlock)

	replyText, err := o.client.Generate(ctx, systemInstruction, nil, prompt)
	if err != nil {
		log.Printf("LLM generation failed for lead %s, retrying once: %v", lead.LeadID, err)
		replyText, err = o.client.Generate(ctx, systemInstruction, nil, prompt)
	}
	if err != nil {
		log.Printf("LLM retry failed for lead %s, using fallback: %v", lead.LeadID, err)
		return llm.FallbackResponse
	}
	return replyText
}

func buildPrompt(lead *store.Lead, message, contextBlock string) string {
	var b strings.Builder
	if contextBlock != "" {
		b.WriteString(contextBlock)
		b.WriteString("\n")
	}

	b.WriteString("Collected customer details so far:\n")
	fmt.Fprintf(&b, "Name: %s\nAge: %s\nCountry: %s\nProduct interest: %s\n", orUnknown(lead.Name), orUnknown(lead.Age), orUnknown(lead.Country), orUnknown(lead.ProductInterest))
	if missing := lead.MissingFields(); len(missing) > 0 {
		fmt.Fprintf(&b, "Still missing: %s\n", strings.Join(missing, ", "))
	}

	fmt.Fprintf(&b, "\nCustomer message: %s", message)
	return b.String()
}

func orUnknown(v string) string {
	if v == "" {
		return "(unknown)"
	}
	return v
}

// applyDetails merges extracted fields into the lead without overwriting
// anything already collected.
func applyDetails(lead *store.Lead, d Details) {
	if d.Name.Found && lead.Name == "" {
		lead.Name = d.Name.Value
	}
	if d.Age.Found && lead.Age == "" {
		lead.Age = d.Age.Value
	}
	if d.Country.Found && lead.Country == "" {
		lead.Country = d.Country.Value
	}
	if d.Interest.Found && lead.ProductInterest == "" {
		lead.ProductInterest = d.Interest.Value
	}
}

// GenerateNudge produces a follow-up message through the same generation
// path as a normal reply, seeded with the staged nudge text.
func (o *Orchestrator) GenerateNudge(ctx context.Context, lead *store.Lead, base string) (string, error) {
	contextBlock := o.loadContext(ctx, lead, base)
	prompt := buildPrompt(lead, base, contextBlock) +
		"\n\nThe customer has been inactive. Rephrase the message above as a short, friendly nudge to continue the conversation."
	return o.client.Generate(ctx, systemInstruction, nil, prompt)
}
