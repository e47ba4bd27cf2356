package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/session"
)

func TestCSRFIssueAndVerify(t *testing.T) {
	issuer := session.NewCSRFIssuer("test-secret-at-least-32-bytes-long!", time.Hour)

	token, err := issuer.Issue("sess-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, issuer.Verify(token, "sess-1"))
}

func TestCSRFTokenBoundToSession(t *testing.T) {
	issuer := session.NewCSRFIssuer("test-secret-at-least-32-bytes-long!", time.Hour)

	token, err := issuer.Issue("sess-1")
	require.NoError(t, err)

	// A token stolen from one session fails against another session.
	err = issuer.Verify(token, "sess-2")
	assert.True(t, errors.Is(err, errors.ErrForbidden))
}

func TestCSRFRejectsForeignSecret(t *testing.T) {
	issuer := session.NewCSRFIssuer("test-secret-at-least-32-bytes-long!", time.Hour)
	other := session.NewCSRFIssuer("a-completely-different-signing-key!!", time.Hour)

	token, err := other.Issue("sess-1")
	require.NoError(t, err)

	err = issuer.Verify(token, "sess-1")
	assert.True(t, errors.Is(err, errors.ErrForbidden))
}

func TestCSRFRejectsGarbage(t *testing.T) {
	issuer := session.NewCSRFIssuer("test-secret-at-least-32-bytes-long!", time.Hour)

	err := issuer.Verify("not-a-jwt", "sess-1")
	assert.True(t, errors.Is(err, errors.ErrForbidden))
}

func TestCSRFRejectsExpiredToken(t *testing.T) {
	issuer := session.NewCSRFIssuer("test-secret-at-least-32-bytes-long!", -time.Minute)

	token, err := issuer.Issue("sess-1")
	require.NoError(t, err)

	err = issuer.Verify(token, "sess-1")
	assert.True(t, errors.Is(err, errors.ErrForbidden))
}
