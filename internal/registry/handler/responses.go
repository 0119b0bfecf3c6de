package handler

import "certify/internal/registry/models"

// CredentialResponse is the record stored at a key. Absent keys yield the
// zero record with valid=false.
type CredentialResponse = models.CredentialRecord

// ReceiptResponse is returned by state-changing calls and the commit lookup.
type ReceiptResponse = models.Receipt

type RegisteredResponse struct {
	IdentityKey string `json:"identity_key"`
	Registered  bool   `json:"registered"`
}

type VerifyResponse struct {
	IdentityKey string `json:"identity_key"`
	Valid       bool   `json:"valid"`
}

type DocumentVerifyResponse struct {
	IdentityKey    string `json:"identity_key"`
	Valid          bool   `json:"valid"`
	Algorithm      string `json:"algorithm"`
	DocumentDigest string `json:"document_digest"`
}

type DigestResponse struct {
	Algorithm      string `json:"algorithm"`
	DocumentDigest string `json:"document_digest"`
	CID            string `json:"cid"`
	Size           int64  `json:"size"`
}

type NetworkResponse struct {
	NetworkID       string `json:"network_id"`
	DigestAlgorithm string `json:"digest_algorithm"`
}
