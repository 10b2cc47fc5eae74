// Package store keeps the messages accepted by the provider for the lifetime of the process.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/mrkagelui/metamock/apperr"
)

// Channel is a messaging network the provider delivers to.
type Channel string

// these are the supported channels.
const (
	WhatsApp  Channel = "whatsapp"
	Instagram Channel = "instagram"
)

// Valid tells whether c is a supported channel.
func (c Channel) Valid() bool {
	return c == WhatsApp || c == Instagram
}

// Delivered is the only status a stored message ever has.
const Delivered = "delivered"

// Record is an accepted outbound message.
type Record struct {
	ProviderMessageID string    `json:"providerMessageId"`
	ClientMessageID   string    `json:"clientMessageId,omitempty"`
	Channel           Channel   `json:"channel"`
	To                string    `json:"to"`
	Text              string    `json:"text"`
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
}

// Store contains all records ever put. Nothing is evicted, so memory grows with
// every accepted message; restart the process between long fuzzing sessions.
type Store struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]Record)}
}

// Put saves r under its provider message ID.
func (s *Store) Put(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ProviderMessageID] = r
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("message %q: %w", id, apperr.ErrNotFound)
	}
	return r, nil
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
