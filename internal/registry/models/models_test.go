package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const sampleDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func sampleCommand() InsertCommand {
	return InsertCommand{
		IdentityKey:      "123456789",
		OwnerName:        "John Doe",
		Program:          "Teknik Informatika",
		GraduationPeriod: "2024",
		DocumentDigest:   sampleDigest,
	}
}

func TestZeroRecordIsAbsent(t *testing.T) {
	var r CredentialRecord
	assert.False(t, r.IsPresent())
	assert.False(t, r.Valid)
	assert.False(t, r.MatchesDigest(""))
}

func TestMatchesDigest(t *testing.T) {
	r := sampleCommand().Record()
	assert.True(t, r.Valid)
	assert.True(t, r.MatchesDigest(sampleDigest))
	assert.False(t, r.MatchesDigest("E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855"), "comparison is case-sensitive")
	assert.False(t, r.Invalidated().MatchesDigest(sampleDigest))
}

func TestInvalidatedKeepsFields(t *testing.T) {
	r := sampleCommand().Record()
	inv := r.Invalidated()
	assert.False(t, inv.Valid)
	assert.True(t, inv.IsPresent())
	assert.Equal(t, r.DocumentDigest, inv.DocumentDigest)
	assert.True(t, r.Valid, "original is not mutated")
}

func TestNewCredentialAdded(t *testing.T) {
	at := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	ev := NewCredentialAdded(sampleCommand(), Receipt{Sequence: 3, TxID: "tx", CommittedAt: at})
	assert.Equal(t, IdentityKey("123456789"), ev.IdentityKey)
	assert.Equal(t, "John Doe", ev.OwnerName)
	assert.Equal(t, "Teknik Informatika", ev.Program)
	assert.Equal(t, "2024", ev.GraduationPeriod)
	assert.Equal(t, sampleDigest, ev.DocumentDigest)
	assert.Equal(t, uint64(3), ev.Sequence)
	assert.Equal(t, at, ev.CommittedAt)
}
