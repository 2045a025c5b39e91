package auth_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/a-essam23/socket-gateway/pkg/auth"
	"github.com/a-essam23/socket-gateway/pkg/state"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newResolver(mode auth.Mode) *auth.Resolver {
	return auth.NewResolver(slog.New(slog.NewTextHandler(io.Discard, nil)), mode, testSecret)
}

func TestResolve_FallbackOpen(t *testing.T) {
	r := newResolver(auth.ModeFallbackOpen)
	alice := state.Identity{ID: 42, Username: "alice", Role: state.RoleAdmin}
	valid, err := r.Issue(alice, time.Hour)
	require.NoError(t, err)

	other := auth.NewResolver(slog.New(slog.NewTextHandler(io.Discard, nil)), auth.ModeFallbackOpen, "other-secret")
	foreign, err := other.Issue(alice, time.Hour)
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		ID:       alice.ID,
		Username: alice.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name       string
		credential string
		want       state.Identity
		outcome    auth.Outcome
	}{
		{name: "no token", credential: "", want: state.FallbackIdentity, outcome: auth.OutcomeNoToken},
		{name: "valid token", credential: valid, want: alice, outcome: auth.OutcomeVerified},
		{name: "tampered token", credential: valid + "x", want: state.FallbackIdentity, outcome: auth.OutcomeInvalid},
		{name: "wrong secret", credential: foreign, want: state.FallbackIdentity, outcome: auth.OutcomeInvalid},
		{name: "garbage", credential: "not-a-jwt", want: state.FallbackIdentity, outcome: auth.OutcomeInvalid},
		{name: "expired", credential: expired, want: state.FallbackIdentity, outcome: auth.OutcomeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, outcome, err := r.Resolve(tt.credential)
			require.NoError(t, err)
			assert.Equal(t, tt.want, identity)
			assert.Equal(t, tt.outcome, outcome)
		})
	}
}

func TestResolve_FallbackIdentityShape(t *testing.T) {
	identity, _, err := newResolver(auth.ModeFallbackOpen).Resolve("")
	require.NoError(t, err)
	assert.Equal(t, int64(999), identity.ID)
	assert.Equal(t, "test_user", identity.Username)
	assert.Equal(t, state.RoleUser, identity.Role)
}

func TestResolve_Enforced(t *testing.T) {
	r := newResolver(auth.ModeEnforced)

	_, outcome, err := r.Resolve("")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.Equal(t, auth.OutcomeNoToken, outcome)

	_, outcome, err = r.Resolve("not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.Equal(t, auth.OutcomeInvalid, outcome)

	bob := state.Identity{ID: 7, Username: "bob", Role: state.RoleUser}
	token, err := r.Issue(bob, time.Hour)
	require.NoError(t, err)
	identity, outcome, err := r.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, bob, identity)
	assert.Equal(t, auth.OutcomeVerified, outcome)
}

func TestVerify_RejectsNonHMAC(t *testing.T) {
	r := newResolver(auth.ModeEnforced)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{ID: 1, Username: "mallory"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = r.Verify(signed)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerify_RequiresUsername(t *testing.T) {
	r := newResolver(auth.ModeEnforced)
	token, err := r.Issue(state.Identity{ID: 3}, time.Hour)
	require.NoError(t, err)

	_, err = r.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerify_MissingRoleDefaultsToUser(t *testing.T) {
	r := newResolver(auth.ModeEnforced)
	token, err := r.Issue(state.Identity{ID: 5, Username: "carol"}, time.Hour)
	require.NoError(t, err)

	identity, err := r.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, state.RoleUser, identity.Role)
}

func TestParseMode(t *testing.T) {
	mode, err := auth.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, auth.ModeFallbackOpen, mode)

	mode, err = auth.ParseMode("enforced")
	require.NoError(t, err)
	assert.Equal(t, auth.ModeEnforced, mode)

	_, err = auth.ParseMode("strict")
	assert.Error(t, err)
}
