package service

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log"
	"strings"

	"github.com/zonegate/server/internal/gate/store"
)

// Signature verification failure reasons.
const (
	SigKeyNotFound       = "key_not_found"
	SigMalformedPayload  = "malformed_payload"
	SigMismatch          = "signature_mismatch"
	SigVerificationError = "verification_error"
)

// SignatureResult reports the outcome of checkpoint message verification.
type SignatureResult struct {
	Valid   bool
	Reason  string
	Details string
}

func signatureOK() SignatureResult {
	return SignatureResult{Valid: true}
}

func signatureFailed(reason, details string) SignatureResult {
	return SignatureResult{Reason: reason, Details: details}
}

// SignatureVerifier verifies a checkpoint's asymmetric signature over the
// canonical payload.  Pure apart from key-store reads.
type SignatureVerifier struct {
	keys   store.KeyStore
	logger *log.Logger
}

func NewSignatureVerifier(keys store.KeyStore, logger *log.Logger) *SignatureVerifier {
	return &SignatureVerifier{keys: keys, logger: logger}
}

// Verify checks signedPackage, which is base64(canonicalPayload) + "|" +
// base64(signature), against the checkpoint's registered public key.
func (v *SignatureVerifier) Verify(ctx context.Context, checkpointCode, signedPackage string) SignatureResult {
	key, found, err := v.keys.CheckpointKey(ctx, checkpointCode)
	if err != nil {
		v.logger.Printf("checkpoint key lookup failed for %s: %v", checkpointCode, err)
		return signatureFailed(SigVerificationError, "key lookup failed")
	}
	if !found {
		v.logger.Printf("checkpoint public key not found: %s", checkpointCode)
		return signatureFailed(SigKeyNotFound, "checkpoint key not found")
	}

	// Base64 uses no '|', so the first delimiter splits unambiguously.
	parts := strings.SplitN(signedPackage, "|", 2)
	if len(parts) != 2 {
		return signatureFailed(SigMalformedPayload, "signed package must be base64(payload)|base64(signature)")
	}

	payload, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return signatureFailed(SigMalformedPayload, "invalid payload base64")
	}
	sig, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return signatureFailed(SigMalformedPayload, "invalid signature base64")
	}

	pub, err := parsePublicKeyPEM(key.PublicKeyPEM)
	if err != nil {
		v.logger.Printf("checkpoint %s key parse error: %v", checkpointCode, err)
		return signatureFailed(SigVerificationError, "key parse error")
	}

	digest := sha256.Sum256(payload)

	switch strings.ToUpper(key.KeyType) {
	case "RSA", "":
		rsaKey, ok := pub.(*rsa.PublicKey)
		if !ok {
			return signatureFailed(SigVerificationError, "registered key is not RSA")
		}
		if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, digest[:], sig); err != nil {
			return signatureFailed(SigMismatch, "signature verification failed")
		}
	case "ECDSA":
		ecKey, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return signatureFailed(SigVerificationError, "registered key is not ECDSA")
		}
		if !ecdsa.VerifyASN1(ecKey, digest[:], sig) {
			return signatureFailed(SigMismatch, "signature verification failed")
		}
	default:
		return signatureFailed(SigVerificationError, "unsupported key type: "+key.KeyType)
	}

	return signatureOK()
}

// parsePublicKeyPEM decodes a PKIX (SubjectPublicKeyInfo) PEM block.
func parsePublicKeyPEM(pemText string) (any, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKIX public key: %w", err)
	}
	return pub, nil
}
