// Package export appends confirmed leads to a CSV file for handoff to the
// sales team.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/veloria/leadchat/internal/store"
)

var csvColumns = []string{"lead_id", "name", "age", "country", "interest", "status"}

// LeadWriter appends lead rows to a CSV file, writing the header on first use.
type LeadWriter struct {
	path string
	mu   sync.Mutex
}

func NewLeadWriter(path string) (*LeadWriter, error) {
	w := &LeadWriter{path: path}
	if err := w.ensureHeader(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *LeadWriter) ensureHeader() error {
	if _, err := os.Stat(w.path); err == nil {
		return nil
	}
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("failed to create leads CSV %s: %w", w.path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// Append writes one lead row. Rows are append-only; a lead confirmed twice
// across sessions appears twice, which is fine for an export log.
func (w *LeadWriter) Append(lead *store.Lead) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open leads CSV %s: %w", w.path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	record := []string{lead.LeadID, lead.Name, lead.Age, lead.Country, lead.ProductInterest, string(lead.Status)}
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("failed to write lead row: %w", err)
	}
	cw.Flush()
	return cw.Error()
}
