package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCreate(t *testing.T) {
	v := NewValidator()

	ok := CreateConnectionRequest{PackageID: 1, PartnerID: 2, Username: "alice", Password: "secret"}
	require.NoError(t, ValidateCreate(v, ok))

	err := ValidateCreate(v, CreateConnectionRequest{Username: "bad user", Password: "x"})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "packageid:required")
	assert.Contains(t, err.Error(), "partnerid:required")
	assert.Contains(t, err.Error(), "username:radiususer")

	long := ok
	long.Username = strings.Repeat("a", 65)
	assert.ErrorIs(t, ValidateCreate(v, long), ErrInvalidRequest)
}

func TestIsValidUsername(t *testing.T) {
	assert.True(t, IsValidUsername("alice@isp"))
	assert.True(t, IsValidUsername(`o'brien`))
	assert.False(t, IsValidUsername(""))
	assert.False(t, IsValidUsername("a b"))
	assert.False(t, IsValidUsername("tab\there"))
}
