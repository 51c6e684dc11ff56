package kalshi

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Key material arrives through the environment and tends to get mangled
// on the way (newlines collapsed, headers stripped). ParsePrivateKey
// accepts three encodings: a well-formed PEM block, a PEM block whose
// line breaks were lost, and a bare base64 body with no headers at all.
func ParsePrivateKey(material string) (crypto.Signer, error) {
	s := strings.TrimSpace(material)

	if strings.Contains(s, "-----BEGIN") && strings.Contains(s, "-----END") {
		key, err := parsePEM([]byte(normalizePEM(s)))
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		return key, nil
	}

	// Bare key body: synthesize headers, most common format first.
	for _, label := range []string{"RSA PRIVATE KEY", "EC PRIVATE KEY", "PRIVATE KEY"} {
		candidate := fmt.Sprintf("-----BEGIN %s-----\n%s\n-----END %s-----\n", label, s, label)
		if key, err := parsePEM([]byte(candidate)); err == nil {
			return key, nil
		}
	}

	return nil, fmt.Errorf("private key matches no accepted encoding")
}

var pemBlockRE = regexp.MustCompile(`(?s)-----BEGIN ([A-Z ]+)-----\s*(.+?)\s*-----END ([A-Z ]+)-----`)

// normalizePEM re-inserts the line breaks around the BEGIN/END markers
// that env-var plumbing commonly strips.
func normalizePEM(s string) string {
	m := pemBlockRE.FindStringSubmatch(s)
	if m == nil || m[1] != m[3] {
		return s
	}
	return fmt.Sprintf("-----BEGIN %s-----\n%s\n-----END %s-----\n", m[1], m[2], m[1])
}

func parsePEM(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %T", key)
	}
	return signer, nil
}

// Sign signs "{timestamp}{METHOD}{path}" with the account key and
// returns the base64 signature. The path must include the API version
// prefix. EC keys sign with ECDSA over SHA-256; Kalshi requires RSA-PSS
// with maximum salt length for RSA keys.
func Sign(key crypto.Signer, timestampMS int64, method, path string) (string, error) {
	msg := strconv.FormatInt(timestampMS, 10) + strings.ToUpper(method) + path
	digest := sha256.Sum256([]byte(msg))

	var sig []byte
	var err error
	switch k := key.(type) {
	case *ecdsa.PrivateKey:
		sig, err = ecdsa.SignASN1(rand.Reader, k, digest[:])
	case *rsa.PrivateKey:
		sig, err = rsa.SignPSS(rand.Reader, k, crypto.SHA256, digest[:], &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthAuto,
			Hash:       crypto.SHA256,
		})
	default:
		err = fmt.Errorf("unsupported signing key type %T", key)
	}
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// AuthHeaders builds the four auth headers for one request. Each call
// signs a fresh millisecond timestamp; signatures are never reused.
func AuthHeaders(apiKeyID string, key crypto.Signer, method, fullPath string) (map[string]string, error) {
	ts := time.Now().UnixMilli()
	sig, err := Sign(key, ts, method, fullPath)
	if err != nil {
		return nil, fmt.Errorf("signing request: %w", err)
	}
	return map[string]string{
		"KALSHI-ACCESS-KEY":       apiKeyID,
		"KALSHI-ACCESS-SIGNATURE": sig,
		"KALSHI-ACCESS-TIMESTAMP": strconv.FormatInt(ts, 10),
		"Content-Type":            "application/json",
	}, nil
}
