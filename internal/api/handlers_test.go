package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/veloria/leadchat/internal/core"
	"github.com/veloria/leadchat/internal/export"
	"github.com/veloria/leadchat/internal/llm"
	"github.com/veloria/leadchat/internal/memory"
	"github.com/veloria/leadchat/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ix, err := memory.NewIndex("")
	if err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}

	stub := llm.NewStub()
	mem, err := memory.NewService(st, ix, stub, 5)
	if err != nil {
		t.Fatalf("Failed to create memory service: %v", err)
	}

	exporter, err := export.NewLeadWriter(filepath.Join(dir, "leads.csv"))
	if err != nil {
		t.Fatalf("Failed to create lead writer: %v", err)
	}

	orch := core.NewOrchestrator(st, mem, stub, exporter, 5)
	scheduler := core.NewFollowUpScheduler(st, mem, orch, time.Hour, 3)
	handler := NewAPIHandler(orch, scheduler, mem, st, "stub")
	socket := NewSocketHandler(orch)

	srv := httptest.NewServer(NewRouter(handler, socket))
	t.Cleanup(srv.Close)
	return srv, st
}

func postForm(t *testing.T, url string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(url, form)
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestStartConversation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postForm(t, srv.URL+"/start_conversation", url.Values{"lead_id": {"lead-1"}, "name": {"Dana"}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201 for a new lead", resp.StatusCode)
	}

	var body struct {
		Lead            *store.Lead `json:"lead"`
		ConversationURL string      `json:"conversation_url"`
	}
	decode(t, resp, &body)
	if body.Lead.Status != store.StatusNew || body.Lead.Name != "Dana" {
		t.Errorf("lead = %+v, want new lead named Dana", body.Lead)
	}
	if body.ConversationURL != "/conversation/lead-1" {
		t.Errorf("conversation_url = %q", body.ConversationURL)
	}

	// Starting again for an active lead returns 200 and the same session.
	resp = postForm(t, srv.URL+"/start_conversation", url.Values{"lead_id": {"lead-1"}, "name": {"Dana"}})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 for an existing lead", resp.StatusCode)
	}
	var second struct {
		Lead *store.Lead `json:"lead"`
	}
	decode(t, resp, &second)
	if second.Lead.SessionID != body.Lead.SessionID {
		t.Errorf("active lead got a new session: %q vs %q", second.Lead.SessionID, body.Lead.SessionID)
	}
}

func TestStartConversationValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postForm(t, srv.URL+"/start_conversation", url.Values{"name": {"Dana"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing lead_id: status = %d, want 400", resp.StatusCode)
	}

	resp = postForm(t, srv.URL+"/start_conversation", url.Values{"lead_id": {"lead-1"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing name: status = %d, want 400", resp.StatusCode)
	}
}

func TestReopenTerminalLead(t *testing.T) {
	srv, st := newTestServer(t)

	postForm(t, srv.URL+"/start_conversation", url.Values{"lead_id": {"lead-1"}, "name": {"Dana"}})
	first, err := st.GetLead("lead-1")
	if err != nil || first == nil {
		t.Fatalf("GetLead failed: %v", err)
	}

	first.Status = store.StatusExit
	if err := st.UpdateLead(first); err != nil {
		t.Fatalf("UpdateLead failed: %v", err)
	}

	resp := postForm(t, srv.URL+"/start_conversation", url.Values{"lead_id": {"lead-1"}, "name": {"Dana"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 on reopen", resp.StatusCode)
	}
	var body struct {
		Lead *store.Lead `json:"lead"`
	}
	decode(t, resp, &body)
	if body.Lead.Status != store.StatusNew {
		t.Errorf("reopened lead status = %s, want new", body.Lead.Status)
	}
	if body.Lead.SessionID == first.SessionID {
		t.Error("reopened lead kept its old session")
	}
}

func TestPostMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	postForm(t, srv.URL+"/start_conversation", url.Values{"lead_id": {"lead-1"}, "name": {"Dana"}})

	resp := postForm(t, srv.URL+"/conversation/lead-1", url.Values{"message": {"I'm from Canada"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var reply core.Reply
	decode(t, resp, &reply)
	if reply.Text == "" {
		t.Error("empty reply text")
	}
	if reply.Lead.Country != "Canada" {
		t.Errorf("country = %q, want Canada", reply.Lead.Country)
	}

	resp = postForm(t, srv.URL+"/conversation/lead-1", url.Values{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty message: status = %d, want 400", resp.StatusCode)
	}

	resp = postForm(t, srv.URL+"/conversation/no-such-lead", url.Values{"message": {"hi"}})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown lead: status = %d, want 404", resp.StatusCode)
	}
}

func TestGetConversation(t *testing.T) {
	srv, _ := newTestServer(t)

	postForm(t, srv.URL+"/start_conversation", url.Values{"lead_id": {"lead-1"}, "name": {"Dana"}})
	postForm(t, srv.URL+"/conversation/lead-1", url.Values{"message": {"hello"}})

	resp := get(t, srv.URL+"/conversation/lead-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Lead  *store.Lead  `json:"lead"`
		Turns []store.Turn `json:"turns"`
	}
	decode(t, resp, &body)
	if len(body.Turns) != 1 {
		t.Errorf("got %d turns, want 1", len(body.Turns))
	}

	resp = get(t, srv.URL+"/conversation/no-such-lead")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown lead: status = %d, want 404", resp.StatusCode)
	}
}

func TestCheckFollowUp(t *testing.T) {
	srv, _ := newTestServer(t)

	postForm(t, srv.URL+"/start_conversation", url.Values{"lead_id": {"lead-1"}, "name": {"Dana"}})

	// Threshold is an hour in this server, so nothing is due.
	resp := get(t, srv.URL+"/check_follow_up?lead_id=lead-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		HasFollowUp bool   `json:"has_follow_up"`
		Message     string `json:"message"`
	}
	decode(t, resp, &body)
	if body.HasFollowUp {
		t.Error("follow-up reported due immediately after activity")
	}

	resp = get(t, srv.URL+"/check_follow_up")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing lead_id: status = %d, want 400", resp.StatusCode)
	}
}

func TestHistoryAndClear(t *testing.T) {
	srv, _ := newTestServer(t)

	postForm(t, srv.URL+"/start_conversation", url.Values{"lead_id": {"lead-1"}, "name": {"Dana"}})
	for _, msg := range []string{"one", "two", "three"} {
		postForm(t, srv.URL+"/conversation/lead-1", url.Values{"message": {msg}})
	}

	resp := get(t, srv.URL+"/api/conversation_history/lead-1?limit=2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var turns []store.Turn
	decode(t, resp, &turns)
	if len(turns) != 2 {
		t.Errorf("got %d turns with limit=2", len(turns))
	}

	resp = get(t, srv.URL+"/api/conversation_history/lead-1?limit=zero")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/clear_conversation_history/lead-1", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	defer delResp.Body.Close()
	var cleared struct {
		Deleted int64 `json:"deleted"`
	}
	decode(t, delResp, &cleared)
	if cleared.Deleted != 3 {
		t.Errorf("deleted = %d, want 3", cleared.Deleted)
	}

	resp = get(t, srv.URL+"/api/conversation_history/lead-1")
	var after []store.Turn
	decode(t, resp, &after)
	if len(after) != 0 {
		t.Errorf("%d turns remain after clear", len(after))
	}
}

func TestListAndGetLeads(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, id := range []string{"lead-1", "lead-2"} {
		postForm(t, srv.URL+"/start_conversation", url.Values{"lead_id": {id}, "name": {"Someone"}})
	}

	resp := get(t, srv.URL+"/api/leads")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var leads []store.Lead
	decode(t, resp, &leads)
	if len(leads) != 2 {
		t.Errorf("got %d leads, want 2", len(leads))
	}

	resp = get(t, srv.URL+"/api/leads/lead-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var lead store.Lead
	decode(t, resp, &lead)
	if lead.LeadID != "lead-1" {
		t.Errorf("lead_id = %q, want lead-1", lead.LeadID)
	}

	resp = get(t, srv.URL+"/api/leads/no-such-lead")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown lead: status = %d, want 404", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := get(t, srv.URL+"/api/system/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Database    bool           `json:"database"`
		LLMProvider string         `json:"llm_provider"`
		Leads       map[string]int `json:"leads"`
	}
	decode(t, resp, &body)
	if !body.Database {
		t.Error("database reported unavailable")
	}
	if body.LLMProvider != "stub" {
		t.Errorf("llm_provider = %q, want stub", body.LLMProvider)
	}
}

func TestExitOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	postForm(t, srv.URL+"/start_conversation", url.Values{"lead_id": {"lead-1"}, "name": {"Dana"}})

	resp := postForm(t, srv.URL+"/conversation/lead-1", url.Values{"message": {"goodbye"}})
	var reply core.Reply
	decode(t, resp, &reply)
	if reply.Lead.Status != store.StatusExit {
		t.Errorf("status = %s, want exit", reply.Lead.Status)
	}
	if !strings.Contains(reply.Text, "Goodbye") {
		t.Errorf("farewell = %q", reply.Text)
	}
}
