package sign

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/gadgethost/bridge/internal/config"
	"github.com/go-jose/go-jose/v4"
	"github.com/rs/zerolog/log"
)

// Signer produces and verifies opaque tamper-evident tokens over arbitrary
// byte payloads. Verify recovers the original bytes or fails if the token
// was altered in any way.
type Signer interface {
	Sign(ctx context.Context, payload []byte) (string, error)
	Verify(ctx context.Context, token string) ([]byte, error)
}

// NewFromConfig creates a signer implementation based on the provided
// configuration. A "none" configuration returns nil: signing is optional
// and callers treat a nil signer as "signatures not required".
func NewFromConfig(ctx context.Context, cfg config.SignConfig) (Signer, error) {
	switch cfg.Type {
	case "none":
		return nil, nil

	case "hmac":
		log.Info().Str("sign_type", "hmac").Msg("initializing HMAC signer")
		return NewHMAC([]byte(cfg.HMACKey))

	case "kms":
		log.Info().
			Str("sign_type", "kms").
			Str("key_arn", cfg.KMSKeyARN).
			Msg("initializing KMS signer")

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config for KMS signing: %w", err)
		}

		return NewKMS(kms.NewFromConfig(awsCfg), cfg.KMSKeyARN), nil

	default:
		return nil, fmt.Errorf("invalid sign type %q", cfg.Type)
	}
}

// HMACSigner signs payloads as compact JWS objects using HS256 with a
// shared secret.
type HMACSigner struct {
	signer jose.Signer
	key    []byte
}

// NewHMAC creates a signer using the given shared secret.
func NewHMAC(key []byte) (*HMACSigner, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("hmac signing key must not be empty")
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: key}, nil)
	if err != nil {
		return nil, fmt.Errorf("creating HMAC signer: %w", err)
	}

	return &HMACSigner{signer: signer, key: key}, nil
}

// Sign wraps the payload in a compact JWS token.
func (s *HMACSigner) Sign(_ context.Context, payload []byte) (string, error) {
	obj, err := s.signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("signing payload: %w", err)
	}

	token, err := obj.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("serializing signature: %w", err)
	}
	return token, nil
}

// Verify checks the token signature and returns the embedded payload.
func (s *HMACSigner) Verify(_ context.Context, token string) ([]byte, error) {
	obj, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	payload, err := obj.Verify(s.key)
	if err != nil {
		return nil, fmt.Errorf("verification failed: %w", err)
	}
	return payload, nil
}
