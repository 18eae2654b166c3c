package webhooks

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-tendlc/core"
)

const (
	DefaultSignatureHeader = "telnyx-signature-ed25519"
	DefaultTimestampHeader = "telnyx-timestamp"
	DefaultTolerance       = 300 * time.Second
)

var (
	ErrMissingSignature = errors.New("webhooks: signature header is required")
	ErrMissingTimestamp = errors.New("webhooks: timestamp header is required")
	ErrInvalidTimestamp = errors.New("webhooks: timestamp header is not a decimal number of seconds")
	ErrStaleTimestamp   = errors.New("webhooks: timestamp is outside the tolerance window")
	ErrInvalidPublicKey = errors.New("webhooks: public key must be a base64 encoded 32 byte ed25519 key")
	ErrInvalidSignature = errors.New("webhooks: signature does not match")
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

// Ed25519Verifier checks signatures computed over "timestamp|body".
type Ed25519Verifier struct {
	PublicKey       string
	Tolerance       time.Duration
	SignatureHeader string
	TimestampHeader string
	Now             func() time.Time
	Logger          core.Logger
}

func NewEd25519Verifier(cfg core.WebhookConfig) *Ed25519Verifier {
	return &Ed25519Verifier{
		PublicKey:       cfg.PublicKey,
		Tolerance:       cfg.Tolerance(),
		SignatureHeader: cfg.SignatureHeader,
		TimestampHeader: cfg.TimestampHeader,
	}
}

func (v *Ed25519Verifier) Verify(_ context.Context, req core.InboundRequest) error {
	if v == nil {
		return verificationError(ErrInvalidPublicKey)
	}
	signature := headerValue(req.Headers, v.signatureHeader())
	timestamp := headerValue(req.Headers, v.timestampHeader())
	err := CheckSignature(req.Body, signature, timestamp, v.PublicKey, v.now(), v.tolerance())
	if err != nil {
		v.logger().Warn("webhook signature rejected",
			"surface", req.Surface,
			"timestamp", timestamp,
			"error", err.Error(),
		)
		return verificationError(err)
	}
	return nil
}

// VerifySignature reports whether signatureB64 is a valid signature of
// timestamp + "|" + rawBody within the default replay window.
func VerifySignature(rawBody []byte, signatureB64 string, timestamp string, publicKeyB64 string, now time.Time) bool {
	return CheckSignature(rawBody, signatureB64, timestamp, publicKeyB64, now, DefaultTolerance) == nil
}

// CheckSignature is VerifySignature with the failure cause.
func CheckSignature(
	rawBody []byte,
	signatureB64 string,
	timestamp string,
	publicKeyB64 string,
	now time.Time,
	tolerance time.Duration,
) error {
	signatureB64 = strings.TrimSpace(signatureB64)
	timestamp = strings.TrimSpace(timestamp)
	if signatureB64 == "" {
		return ErrMissingSignature
	}
	if timestamp == "" {
		return ErrMissingTimestamp
	}
	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	skew := now.Sub(time.Unix(seconds, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return ErrStaleTimestamp
	}

	key, err := decodeBase64(publicKeyB64)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return ErrInvalidPublicKey
	}
	signature, err := decodeBase64(signatureB64)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}

	message := make([]byte, 0, len(timestamp)+1+len(rawBody))
	message = append(message, timestamp...)
	message = append(message, '|')
	message = append(message, rawBody...)
	if !ed25519.Verify(ed25519.PublicKey(key), message, signature) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign produces the header values for body with the given private key. It is
// used by tests and local tooling that replay registry webhooks.
func Sign(privateKey ed25519.PrivateKey, body []byte, at time.Time) (signature string, timestamp string) {
	timestamp = strconv.FormatInt(at.Unix(), 10)
	message := append([]byte(timestamp+"|"), body...)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(privateKey, message)), timestamp
}

func decodeBase64(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("webhooks: empty base64 value")
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(value, "="))
}

func verificationError(cause error) error {
	return goerrors.Wrap(cause, goerrors.CategoryAuth, "webhooks: signature verification failed").
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.ServiceErrorUnauthorized)
}

func (v *Ed25519Verifier) signatureHeader() string {
	if value := strings.TrimSpace(v.SignatureHeader); value != "" {
		return value
	}
	return DefaultSignatureHeader
}

func (v *Ed25519Verifier) timestampHeader() string {
	if value := strings.TrimSpace(v.TimestampHeader); value != "" {
		return value
	}
	return DefaultTimestampHeader
}

func (v *Ed25519Verifier) tolerance() time.Duration {
	if v.Tolerance > 0 {
		return v.Tolerance
	}
	return DefaultTolerance
}

func (v *Ed25519Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

func (v *Ed25519Verifier) logger() core.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return glog.Nop()
}
