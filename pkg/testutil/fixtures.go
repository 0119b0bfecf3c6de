package testutil

import (
	"certify/internal/registry/models"
)

// Sample digests. DigestEmpty is the SHA-256 of zero bytes.
const (
	DigestEmpty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	DigestHello = "a591a6d40bf420404a011733cfb7b190d62c65bf0bcda32b57b277d9ad9f146e"
	DigestZero  = "0000000000000000000000000000000000000000000000000000000000000000"
)

// Sample credentials used across registry tests.
var (
	JohnDoe = models.InsertCommand{
		IdentityKey:      "123456789",
		OwnerName:        "John Doe",
		Program:          "Teknik Informatika",
		GraduationPeriod: "2024",
		DocumentDigest:   DigestEmpty,
	}
	JaneSmith = models.InsertCommand{
		IdentityKey:      "987654321",
		OwnerName:        "Jane Smith",
		Program:          "Sistem Informasi",
		GraduationPeriod: "2023",
		DocumentDigest:   DigestHello,
	}
)

// CredentialBuilder provides a fluent interface for building insert commands.
type CredentialBuilder struct {
	cmd models.InsertCommand
}

// NewCredential starts from a copy of JohnDoe.
func NewCredential() *CredentialBuilder {
	return &CredentialBuilder{cmd: JohnDoe}
}

func (b *CredentialBuilder) WithKey(key models.IdentityKey) *CredentialBuilder {
	b.cmd.IdentityKey = key
	return b
}

func (b *CredentialBuilder) WithOwner(name string) *CredentialBuilder {
	b.cmd.OwnerName = name
	return b
}

func (b *CredentialBuilder) WithProgram(program string) *CredentialBuilder {
	b.cmd.Program = program
	return b
}

func (b *CredentialBuilder) WithPeriod(period string) *CredentialBuilder {
	b.cmd.GraduationPeriod = period
	return b
}

func (b *CredentialBuilder) WithDigest(digest string) *CredentialBuilder {
	b.cmd.DocumentDigest = digest
	return b
}

// Build returns the insert command.
func (b *CredentialBuilder) Build() models.InsertCommand {
	return b.cmd
}

// Record returns the valid record the command would store.
func (b *CredentialBuilder) Record() models.CredentialRecord {
	return b.cmd.Record()
}
