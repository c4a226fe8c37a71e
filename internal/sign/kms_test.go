package sign

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKMS simulates KMS signing with an HMAC over the message digest: good
// enough to exercise the token format and the valid/invalid paths.
type fakeKMS struct {
	secret []byte
}

func (f *fakeKMS) mac(message []byte) []byte {
	m := hmac.New(sha256.New, f.secret)
	m.Write(message)
	return m.Sum(nil)
}

func (f *fakeKMS) Sign(_ context.Context, in *kms.SignInput, _ ...func(*kms.Options)) (*kms.SignOutput, error) {
	return &kms.SignOutput{Signature: f.mac(in.Message)}, nil
}

func (f *fakeKMS) Verify(_ context.Context, in *kms.VerifyInput, _ ...func(*kms.Options)) (*kms.VerifyOutput, error) {
	return &kms.VerifyOutput{
		SignatureValid: hmac.Equal(in.Signature, f.mac(in.Message)),
	}, nil
}

func TestKMSSignVerify_RoundTrip(t *testing.T) {
	ctx := context.Background()
	signer := NewKMS(&fakeKMS{secret: []byte("test")}, "arn:aws:kms:us-east-1:123:key/abc")

	payload := []byte("http://example.org/content")

	token, err := signer.Sign(ctx, payload)
	require.NoError(t, err)

	recovered, err := signer.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, payload, recovered)
}

func TestKMSVerify_TamperedPayloadFails(t *testing.T) {
	ctx := context.Background()
	signer := NewKMS(&fakeKMS{secret: []byte("test")}, "arn:aws:kms:us-east-1:123:key/abc")

	token, err := signer.Sign(ctx, []byte("http://example.org/content"))
	require.NoError(t, err)

	otherToken, err := signer.Sign(ctx, []byte("http://evil.example.org/content"))
	require.NoError(t, err)

	// splice the signature from one token onto the other's payload
	tampered := splitPayload(t, otherToken) + "." + splitSignature(t, token)

	_, err = signer.Verify(ctx, tampered)
	require.ErrorContains(t, err, "signature invalid")
}

func TestKMSVerify_MalformedTokenFails(t *testing.T) {
	ctx := context.Background()
	signer := NewKMS(&fakeKMS{secret: []byte("test")}, "arn:aws:kms:us-east-1:123:key/abc")

	_, err := signer.Verify(ctx, "no-separator")
	require.Error(t, err)

	_, err = signer.Verify(ctx, "!!!.???")
	require.Error(t, err)
}

func splitPayload(t *testing.T, token string) string {
	t.Helper()
	payload, _, ok := cut(token)
	require.True(t, ok)
	return payload
}

func splitSignature(t *testing.T, token string) string {
	t.Helper()
	_, sig, ok := cut(token)
	require.True(t, ok)
	return sig
}

func cut(token string) (string, string, bool) {
	for i := range len(token) {
		if token[i] == '.' {
			return token[:i], token[i+1:], true
		}
	}
	return "", "", false
}
