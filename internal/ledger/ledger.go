// Package ledger keeps a local CSV record of listings created through this
// service. It is bookkeeping only; the marketplace remains the system of
// record.
package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const timeFormat = "2006-01-02 15:04:05"

var header = []string{"item_id", "title", "created_at"}

// ListingRecord is one row of the ledger.
type ListingRecord struct {
	ItemID    string    `json:"itemId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ledger is a CSV-backed listing record. A mutex serializes all access;
// removals rewrite the file through a temp file and rename so a crash
// mid-rewrite cannot lose rows.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// New creates a ledger backed by the CSV file at path. The file is created
// lazily on first record.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Record appends a listing with the current timestamp.
func (l *Ledger) Record(itemID, title string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.read()
	if err != nil {
		return err
	}
	records = append(records, ListingRecord{
		ItemID:    itemID,
		Title:     title,
		CreatedAt: time.Now(),
	})
	return l.write(records)
}

// Remove deletes the listing with the given id. Returns whether it was
// found; a miss leaves the file untouched.
func (l *Ledger) Remove(itemID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.read()
	if err != nil {
		return false, err
	}

	kept := records[:0]
	found := false
	for _, rec := range records {
		if rec.ItemID == itemID {
			found = true
			continue
		}
		kept = append(kept, rec)
	}
	if !found {
		return false, nil
	}

	return true, l.write(kept)
}

// List returns all recorded listings in file order.
func (l *Ledger) List() ([]ListingRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *Ledger) read() ([]ListingRecord, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	var records []ListingRecord
	for i, row := range rows {
		if i == 0 || len(row) < 3 {
			// header or malformed row
			continue
		}
		createdAt, _ := time.ParseInLocation(timeFormat, row[2], time.Local)
		records = append(records, ListingRecord{
			ItemID:    row[0],
			Title:     row[1],
			CreatedAt: createdAt,
		})
	}
	return records, nil
}

func (l *Ledger) write(records []ListingRecord) error {
	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger header: %w", err)
	}
	for _, rec := range records {
		row := []string{rec.ItemID, rec.Title, rec.CreatedAt.Format(timeFormat)}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write ledger row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp ledger: %w", err)
	}

	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}
