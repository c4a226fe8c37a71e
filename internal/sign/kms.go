package sign

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// KMSClient defines the AWS API surface required for KMS signing and
// verification.
type KMSClient interface {
	Sign(ctx context.Context, in *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	Verify(ctx context.Context, in *kms.VerifyInput, optFns ...func(*kms.Options)) (*kms.VerifyOutput, error)
}

// KMSSigner signs payloads with an AWS KMS asymmetric key. Private key
// material never leaves KMS; verification round-trips through the service
// as well, so a host without the key cannot forge or validate tokens.
type KMSSigner struct {
	client KMSClient
	arn    string
}

// NewKMS creates a signer backed by the given KMS signing key.
func NewKMS(client KMSClient, arn string) *KMSSigner {
	return &KMSSigner{client: client, arn: arn}
}

// Sign produces a token of the form base64(payload).base64(signature).
func (s *KMSSigner) Sign(ctx context.Context, payload []byte) (string, error) {
	hash := sha256.Sum256(payload)

	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.arn),
		Message:          hash[:],
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecRsassaPkcs1V15Sha256,
	})
	if err != nil {
		return "", fmt.Errorf("KMS signing failed: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(payload) +
		"." + base64.RawURLEncoding.EncodeToString(out.Signature), nil
}

// Verify validates the token signature with KMS and returns the payload.
func (s *KMSSigner) Verify(ctx context.Context, token string) ([]byte, error) {
	encodedPayload, encodedSig, ok := strings.Cut(token, ".")
	if !ok {
		return nil, fmt.Errorf("malformed token")
	}

	payload, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return nil, fmt.Errorf("malformed token payload: %w", err)
	}
	signature, err := base64.RawURLEncoding.DecodeString(encodedSig)
	if err != nil {
		return nil, fmt.Errorf("malformed token signature: %w", err)
	}

	hash := sha256.Sum256(payload)

	out, err := s.client.Verify(ctx, &kms.VerifyInput{
		KeyId:            aws.String(s.arn),
		Message:          hash[:],
		MessageType:      types.MessageTypeDigest,
		Signature:        signature,
		SigningAlgorithm: types.SigningAlgorithmSpecRsassaPkcs1V15Sha256,
	})
	if err != nil {
		return nil, fmt.Errorf("KMS verification failed: %w", err)
	}
	if !out.SignatureValid {
		return nil, fmt.Errorf("verification failed: signature invalid")
	}

	return payload, nil
}
