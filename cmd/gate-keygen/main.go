// gate-keygen emits a PEM keypair for provisioning checkpoint signing
// keys or token issuer keys.
//
// Usage:
//
//	gate-keygen -type rsa  -out checkpoint-a
//	gate-keygen -type ecdsa -out issuer-main
//
// Writes <out>.key (PKCS#8 private key) and <out>.pub (PKIX public key).
// The .pub contents go in the admin key PUT body as publicKeyPem.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	logger := log.New(os.Stderr, "gate-keygen ", 0)

	keyType := flag.String("type", "rsa", "key type: rsa or ecdsa")
	bits := flag.Int("bits", 2048, "RSA key size in bits")
	out := flag.String("out", "gate-key", "output file prefix")
	flag.Parse()

	var priv any
	var err error
	switch *keyType {
	case "rsa":
		priv, err = rsa.GenerateKey(rand.Reader, *bits)
	case "ecdsa":
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	default:
		logger.Fatalf("unknown key type %q (want rsa or ecdsa)", *keyType)
	}
	if err != nil {
		logger.Fatalf("generate key: %v", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		logger.Fatalf("marshal private key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(publicKey(priv))
	if err != nil {
		logger.Fatalf("marshal public key: %v", err)
	}

	if err := writePEM(*out+".key", "PRIVATE KEY", privDER, 0o600); err != nil {
		logger.Fatalf("%v", err)
	}
	if err := writePEM(*out+".pub", "PUBLIC KEY", pubDER, 0o644); err != nil {
		logger.Fatalf("%v", err)
	}

	fmt.Printf("wrote %s.key and %s.pub (%s)\n", *out, *out, *keyType)
}

func publicKey(priv any) any {
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		return &k.PublicKey
	case *ecdsa.PrivateKey:
		return &k.PublicKey
	}
	return nil
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
