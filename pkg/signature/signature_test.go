package signature

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "whsec_test"

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestZoomVerifierAcceptsValidSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{"event":"recording.completed","payload":{"object":{"uuid":"abc=="}}}`)
	v := ZoomVerifier{Window: 5 * time.Minute, Now: fixedClock(now)}

	require.NoError(t, v.Verify(secret, body, ZoomSignature(secret, ts, body), ts))
}

func TestZoomVerifierRejectsEverySingleByteMutation(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{"event":"recording.completed","payload":{"object":{"id":85012345678}}}`)
	sig := ZoomSignature(secret, ts, body)
	v := ZoomVerifier{Now: fixedClock(now)}

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		assert.ErrorIs(t, v.Verify(secret, mutated, sig, ts), ErrMismatch, "body byte %d", i)
	}
	for i := range ts {
		mutated := []byte(ts)
		mutated[i] = '0' + (mutated[i]-'0'+1)%10
		assert.Error(t, v.Verify(secret, body, sig, string(mutated)), "timestamp byte %d", i)
	}
}

func TestZoomVerifierErrors(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{}`)
	sig := ZoomSignature(secret, ts, body)
	v := ZoomVerifier{Window: time.Minute, Now: fixedClock(now)}

	assert.ErrorIs(t, v.Verify("", body, sig, ts), ErrNoSecret)
	assert.ErrorIs(t, v.Verify(secret, body, "", ts), ErrMissingSignature)
	assert.ErrorIs(t, v.Verify(secret, body, sig, ""), ErrMissingTimestamp)
	assert.ErrorIs(t, v.Verify(secret, body, sig, "yesterday"), ErrBadTimestamp)
	assert.ErrorIs(t, v.Verify("other", body, sig, ts), ErrMismatch)

	late := ZoomVerifier{Window: time.Minute, Now: fixedClock(now.Add(2 * time.Minute))}
	assert.ErrorIs(t, late.Verify(secret, body, sig, ts), ErrStale)
}

func TestVerifyBody(t *testing.T) {
	body := []byte(`{"meeting_id":"m1","host_email":"a@example.com"}`)
	sig := Sign(secret, body)

	assert.NoError(t, VerifyBody(secret, body, sig))
	assert.NoError(t, VerifyBody(secret, body, "sha256="+sig))
	assert.ErrorIs(t, VerifyBody(secret, body, ""), ErrMissingSignature)
	assert.ErrorIs(t, VerifyBody("", body, sig), ErrNoSecret)

	mutated := append([]byte(nil), body...)
	mutated[3] = 'X'
	assert.ErrorIs(t, VerifyBody(secret, mutated, sig), ErrMismatch)
}

func TestSignKnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	assert.Equal(t,
		"5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		Sign("Jefe", []byte("what do ya want for nothing?")))
}
