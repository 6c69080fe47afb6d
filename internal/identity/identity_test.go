package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_NotifiesTransitions(t *testing.T) {
	p := NewStatic("")
	var seen []string
	stop := p.OnChange(func(id string) { seen = append(seen, id) })

	p.SignIn("alice")
	p.SignIn("alice")
	p.SignIn("bob")
	p.SignOut()
	stop()
	p.SignIn("carol")

	assert.Equal(t, []string{"alice", "bob", ""}, seen)
	assert.Equal(t, "carol", p.Current())
}

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.Issue("alice", time.Minute)
	require.NoError(t, err)

	id, err := v.Verify("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id)
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("secret")

	_, err := v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)

	other, err := NewVerifier("other").Issue("alice", time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := v.Issue("alice", -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.Verify(noExp)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
