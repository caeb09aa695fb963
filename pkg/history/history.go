// Package history keeps a local JSON ledger of submitted transactions.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	DefaultFileName = ".devcamp-history.json"
)

// Kind is the action that produced a transaction
type Kind string

const (
	KindApprove    Kind = "approve"
	KindSwap       Kind = "swap"
	KindSendNative Kind = "send-native"
	KindSendERC20  Kind = "send-erc20"
	KindClaim      Kind = "claim"
)

// Status is the last known state of a transaction
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Record is one submitted transaction
type Record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	ChainID   int64     `json:"chain_id"`
	TxHash    string    `json:"tx_hash"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Token     string    `json:"token,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Kind   Kind
	Status Status
	Limit  int
}

// Store persists records to a JSON file
type Store struct {
	filePath string
	mu       sync.RWMutex
	records  map[string]*Record
}

type fileFormat struct {
	Records map[string]*Record `json:"records"`
}

// NewStore opens the ledger at filePath, defaulting to the home directory
func NewStore(filePath string) (*Store, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultFileName)
	}

	s := &Store{
		filePath: filePath,
		records:  make(map[string]*Record),
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}
	if f.Records != nil {
		s.records = f.Records
	}
	return nil
}

// saveLocked writes through a temp file and rename. Callers hold mu.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(fileFormat{Records: s.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Add stores a new record, assigning its ID and timestamps
func (s *Store) Add(rec *Record) error {
	if rec.TxHash == "" {
		return fmt.Errorf("record has no transaction hash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.findLocked(rec.TxHash); exists {
		return fmt.Errorf("transaction %s already recorded", rec.TxHash)
	}

	now := time.Now().UTC()
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	s.records[rec.ID] = rec

	return s.saveLocked()
}

// UpdateStatus sets the final state of the record holding txHash
func (s *Store) UpdateStatus(txHash string, status Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.findLocked(txHash)
	if !ok {
		return fmt.Errorf("transaction %s not found", txHash)
	}
	rec.Status = status
	rec.Error = errMsg
	rec.UpdatedAt = time.Now().UTC()

	return s.saveLocked()
}

// Get looks a record up by ID or transaction hash
func (s *Store) Get(idOrHash string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.records[idOrHash]; ok {
		return rec, nil
	}
	if rec, ok := s.findLocked(idOrHash); ok {
		return rec, nil
	}
	return nil, fmt.Errorf("record '%s' not found", idOrHash)
}

// List returns matching records, newest first
func (s *Store) List(f Filter) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := lo.Filter(lo.Values(s.records), func(r *Record, _ int) bool {
		return (f.Kind == "" || r.Kind == f.Kind) && (f.Status == "" || r.Status == f.Status)
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Count returns the total number of records
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// FilePath returns the ledger location
func (s *Store) FilePath() string {
	return s.filePath
}

func (s *Store) findLocked(txHash string) (*Record, bool) {
	return lo.Find(lo.Values(s.records), func(r *Record) bool {
		return strings.EqualFold(r.TxHash, txHash)
	})
}
