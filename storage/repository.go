// Package storage defines the issuance ledger used to keep certificate
// serial numbers unique per certificate authority.
package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a serial has no record for the authority.
	ErrNotFound = errors.New("record not found")

	// ErrSerialExists is returned by Reserve when the authority has already
	// issued (or reserved) the serial.
	ErrSerialExists = errors.New("serial number already issued by this authority")
)

// Record kinds.
const (
	KindCA   = "ca"
	KindLeaf = "leaf"
)

// IssuanceRecord describes one serial number handed out by an authority.
type IssuanceRecord struct {
	Serial   string    `json:"serial"`
	Kind     string    `json:"kind"`
	Subject  string    `json:"subject"`
	RunID    string    `json:"run_id,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
}

// Ledger records issued serial numbers, scoped by authority. The authority
// key is opaque to the ledger; the PKI layer uses the hex SHA-256 of the CA
// public key.
type Ledger interface {
	// Reserve stores rec if its serial is new for authority and returns
	// ErrSerialExists otherwise. The check and the write are atomic.
	Reserve(authority string, rec *IssuanceRecord) error
	Get(authority string, serial string) (*IssuanceRecord, error)
	List(authority string) ([]*IssuanceRecord, error)
}
