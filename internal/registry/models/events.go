package models

import "time"

// EventCredentialAdded is the event type emitted after every committed insert.
const EventCredentialAdded = "credential_added"

// CredentialAdded is the change notification for an insert. It carries the
// same five fields as the call plus the commit it belongs to.
type CredentialAdded struct {
	IdentityKey      IdentityKey `json:"identity_key"`
	OwnerName        string      `json:"owner_name"`
	Program          string      `json:"program"`
	GraduationPeriod string      `json:"graduation_period"`
	DocumentDigest   string      `json:"document_digest"`
	Sequence         uint64      `json:"sequence"`
	TxID             string      `json:"tx_id"`
	CommittedAt      time.Time   `json:"committed_at"`
}

// NewCredentialAdded builds the event for a committed insert.
func NewCredentialAdded(cmd InsertCommand, receipt Receipt) CredentialAdded {
	return CredentialAdded{
		IdentityKey:      cmd.IdentityKey,
		OwnerName:        cmd.OwnerName,
		Program:          cmd.Program,
		GraduationPeriod: cmd.GraduationPeriod,
		DocumentDigest:   cmd.DocumentDigest,
		Sequence:         receipt.Sequence,
		TxID:             receipt.TxID,
		CommittedAt:      receipt.CommittedAt,
	}
}
