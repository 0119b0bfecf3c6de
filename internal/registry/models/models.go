package models

import (
	"time"
)

// IdentityKey is the unique string a credential is indexed by (for example
// an enrollment number). The registry treats it as opaque text.
type IdentityKey string

// String returns the key as a string.
func (k IdentityKey) String() string {
	return string(k)
}

// IsEmpty reports whether the key is the empty string.
func (k IdentityKey) IsEmpty() bool {
	return k == ""
}

// CredentialRecord is one issued credential as stored in the registry.
// The zero value represents "no credential" at a key.
type CredentialRecord struct {
	OwnerName        string      `json:"owner_name"`
	IdentityKey      IdentityKey `json:"identity_key"`
	Program          string      `json:"program"`
	GraduationPeriod string      `json:"graduation_period"`
	DocumentDigest   string      `json:"document_digest"`
	Valid            bool        `json:"valid"`
}

// IsPresent reports whether the record was written by an insert.
// Presence is defined by a non-empty IdentityKey field, independent of Valid.
func (r CredentialRecord) IsPresent() bool {
	return !r.IdentityKey.IsEmpty()
}

// MatchesDigest reports whether candidate verifies against this record:
// the record is present, still valid, and the digests are byte-for-byte equal.
func (r CredentialRecord) MatchesDigest(candidate string) bool {
	return r.IsPresent() && r.Valid && r.DocumentDigest == candidate
}

// Invalidated returns a copy of the record with Valid forced false.
func (r CredentialRecord) Invalidated() CredentialRecord {
	r.Valid = false
	return r
}

// InsertCommand carries the five fields of an insert.
type InsertCommand struct {
	IdentityKey      IdentityKey
	OwnerName        string
	Program          string
	GraduationPeriod string
	DocumentDigest   string
}

// Record builds the freshly inserted, valid record for the command.
func (c InsertCommand) Record() CredentialRecord {
	return CredentialRecord{
		OwnerName:        c.OwnerName,
		IdentityKey:      c.IdentityKey,
		Program:          c.Program,
		GraduationPeriod: c.GraduationPeriod,
		DocumentDigest:   c.DocumentDigest,
		Valid:            true,
	}
}

// Operation names a state-changing registry call.
type Operation string

const (
	OperationInsert     Operation = "insert"
	OperationInvalidate Operation = "invalidate"
)

// Receipt is the durable proof that a state change was committed.
// Sequence numbers are strictly increasing in commit order.
type Receipt struct {
	Sequence    uint64      `json:"sequence"`
	TxID        string      `json:"tx_id"`
	Operation   Operation   `json:"operation"`
	IdentityKey IdentityKey `json:"identity_key"`
	Issuer      string      `json:"issuer,omitempty"`
	CommittedAt time.Time   `json:"committed_at"`
}
