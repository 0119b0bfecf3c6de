package handler

import (
	"certify/internal/registry/models"
	"certify/pkg/validation"
)

// InsertRequest is the body of POST /credentials. Fields are stored verbatim;
// only their length is bounded.
type InsertRequest struct {
	IdentityKey      string `json:"identity_key" validate:"max=256"`
	OwnerName        string `json:"owner_name" validate:"max=512"`
	Program          string `json:"program" validate:"max=512"`
	GraduationPeriod string `json:"graduation_period" validate:"max=64"`
	DocumentDigest   string `json:"document_digest" validate:"max=512"`
}

func (r *InsertRequest) Validate() error {
	return validation.Validate(r)
}

// Command converts the request into a registry insert.
func (r *InsertRequest) Command() models.InsertCommand {
	return models.InsertCommand{
		IdentityKey:      models.IdentityKey(r.IdentityKey),
		OwnerName:        r.OwnerName,
		Program:          r.Program,
		GraduationPeriod: r.GraduationPeriod,
		DocumentDigest:   r.DocumentDigest,
	}
}

// VerifyRequest is the body of POST /credentials/{key}/verify.
type VerifyRequest struct {
	DocumentDigest string `json:"document_digest" validate:"max=512"`
}

func (r *VerifyRequest) Validate() error {
	return validation.Validate(r)
}
