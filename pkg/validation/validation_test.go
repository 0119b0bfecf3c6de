package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certify/pkg/domain-errors"
)

type sample struct {
	IdentityKey string `json:"identity_key" validate:"max=8"`
	Program     string `json:"program" validate:"min=2"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     sample
		wantMsg string
	}{
		{name: "within limit", req: sample{IdentityKey: "12345678", Program: "TI"}},
		{name: "limit counts characters", req: sample{IdentityKey: strings.Repeat("é", 8), Program: "TI"}},
		{name: "too long", req: sample{IdentityKey: strings.Repeat("9", 9), Program: "TI"}, wantMsg: "identity_key must be at most 8 characters"},
		{name: "too short", req: sample{Program: "T"}, wantMsg: "program must be at least 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestValidateIdentityKey(t *testing.T) {
	assert.NoError(t, ValidateIdentityKey(""))
	assert.NoError(t, ValidateIdentityKey(strings.Repeat("9", MaxIdentityKeyLength)))
	// 200 two-byte runes: 400 bytes, still within the limit
	assert.NoError(t, ValidateIdentityKey(strings.Repeat("é", 200)))

	err := ValidateIdentityKey(strings.Repeat("é", MaxIdentityKeyLength+1))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Equal(t, "identity_key must be at most 256 characters", err.Error())
}
