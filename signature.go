package aegis

import (
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"southwinds.dev/aegis/audit"
)

// SignTemplate computes an RSA-SHA256 signature over the template
// bytes, base64-encodes it and writes it to "<path>.sig". Both the
// template path and the private key path must pass validation first.
// Returns the signature file path.
func (c *Checker) SignTemplate(path, privateKeyPath string) (string, error) {
	if result := ValidatePath(path, &c.templatePolicy); !result.Valid {
		return "", fmt.Errorf("%w: %s", errUnsafePath, result.Message)
	}
	if result := ValidatePath(privateKeyPath, &c.keyPolicy); !result.Valid {
		return "", fmt.Errorf("%w: %s", errUnsafePath, result.Message)
	}

	privateKey, err := loadPrivateKey(privateKeyPath)
	if err != nil {
		c.auditLog(audit.ActionTemplateSign, false, map[string]interface{}{"path": path, "error": err.Error()})
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.auditLog(audit.ActionTemplateSign, false, map[string]interface{}{"path": path, "error": err.Error()})
		return "", fmt.Errorf("failed to sign template: %w", err)
	}

	digest := sha256.Sum256(data)
	signature, err := rsa.SignPKCS1v15(rand.Reader, privateKey, stdcrypto.SHA256, digest[:])
	if err != nil {
		c.auditLog(audit.ActionTemplateSign, false, map[string]interface{}{"path": path, "error": err.Error()})
		return "", fmt.Errorf("failed to sign template: %w", err)
	}

	signaturePath := path + SignatureFileExt
	encoded := base64.StdEncoding.EncodeToString(signature)
	if err = os.WriteFile(signaturePath, []byte(encoded), 0600); err != nil {
		c.auditLog(audit.ActionTemplateSign, false, map[string]interface{}{"path": path, "error": err.Error()})
		return "", fmt.Errorf("failed to write signature file: %w", err)
	}

	c.auditLog(audit.ActionTemplateSign, true, map[string]interface{}{"path": path})
	return signaturePath, nil
}

// VerifySignature checks the "<path>.sig" sidecar against the live
// template bytes using the public key at publicKeyPath. The signature
// always covers the file's bytes at verify time, independent of any
// checksum sidecar. Every failure mode — missing sidecar, unreadable
// key, cryptographically invalid signature — returns false; a caller
// cannot tell them apart, which is the point.
func (c *Checker) VerifySignature(path, publicKeyPath string) bool {
	signaturePath := path + SignatureFileExt

	encoded, err := os.ReadFile(signaturePath)
	if err != nil {
		c.auditLog(audit.ActionTemplateVerify, false, map[string]interface{}{"path": path, "error": "signature file not available"})
		return false
	}

	signature, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return false
	}

	publicKey, err := loadPublicKey(publicKeyPath)
	if err != nil {
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(publicKey, stdcrypto.SHA256, digest[:], signature) == nil
}

// loadPrivateKey reads a PEM-encoded RSA private key (PKCS#1 or
// PKCS#8). Signing is a deliberate act: an unreadable or malformed key
// fails loud.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to read private key: no PEM block found")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("failed to parse private key: not an RSA key")
		}
		return key, nil
	default:
		return nil, fmt.Errorf("failed to parse private key: unsupported PEM type %q", block.Type)
	}
}

// loadPublicKey reads a PEM-encoded RSA public key (PKIX or PKCS#1).
func loadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to read public key: no PEM block found")
	}

	switch block.Type {
	case "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("failed to parse public key: not an RSA key")
		}
		return key, nil
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("failed to parse public key: unsupported PEM type %q", block.Type)
	}
}
