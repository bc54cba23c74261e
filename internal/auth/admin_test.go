package auth

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminCredentials(t *testing.T) {
	key, err := GenerateTOTPSecret("lending-gateway", "admin")
	require.NoError(t, err)
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	creds := AdminCredentials{Username: "admin", PasswordHash: hash, TOTPSecret: key.Secret()}
	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	assert.NoError(t, creds.Check("admin", "hunter2", code))
	assert.ErrorIs(t, creds.Check("root", "hunter2", code), ErrInvalidCredentials)
	assert.ErrorIs(t, creds.Check("admin", "wrong", code), ErrInvalidCredentials)
	assert.ErrorIs(t, creds.Check("admin", "hunter2", "000000x"), ErrInvalidCredentials)

	err = AdminCredentials{Username: "admin"}.Check("admin", "hunter2", code)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}
