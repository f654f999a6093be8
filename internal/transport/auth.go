package transport

import (
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

var (
	// ErrUnauthorized is returned by Authenticator.Authenticate on any
	// failure; the caller closes the connection with code 4401
	// (spec.md §4.1).
	ErrUnauthorized = errors.New("transport: unauthorized")
)

// Authenticator validates a connecting client's token and remote address.
// No JWT library exists anywhere in the retrieved corpus, so JWT
// verification here is implemented directly over stdlib crypto primitives
// (see DESIGN.md).
type Authenticator struct {
	sharedSecret string
	publicKey    interface{} // *rsa.PublicKey or ed25519.PublicKey
	allowedNets  []*net.IPNet
	allowedIPs   map[string]struct{}
}

// NewAuthenticator builds an Authenticator from configuration. sharedSecret
// and/or publicKeyPEM may be empty; when both are empty, authentication is
// a no-op (any token is accepted) — a misconfiguration the caller should
// warn about at startup (internal/config does).
func NewAuthenticator(sharedSecret string, publicKeyPEM string, allowedIPs []string) (*Authenticator, error) {
	a := &Authenticator{sharedSecret: sharedSecret, allowedIPs: make(map[string]struct{})}

	if publicKeyPEM != "" {
		key, err := parsePublicKey(publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("transport: parse JWT public key: %w", err)
		}
		a.publicKey = key
	}

	for _, entry := range allowedIPs {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, ipnet, err := net.ParseCIDR(entry); err == nil {
			a.allowedNets = append(a.allowedNets, ipnet)
			continue
		}
		a.allowedIPs[entry] = struct{}{}
	}

	return a, nil
}

func parsePublicKey(pemStr string) (interface{}, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("transport: no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return k, nil
	case ed25519.PublicKey:
		return k, nil
	default:
		return nil, fmt.Errorf("transport: unsupported public key type %T", pub)
	}
}

// CheckIP enforces the allow-list, if configured.
func (a *Authenticator) CheckIP(remoteAddr string) bool {
	if len(a.allowedNets) == 0 && len(a.allowedIPs) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if _, ok := a.allowedIPs[host]; ok {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range a.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Authenticate validates token, preferring JWT verification when a public
// key is configured, falling back to a constant-time shared-secret
// comparison.
func (a *Authenticator) Authenticate(token string) error {
	if a.publicKey != nil && looksLikeJWT(token) {
		return a.verifyJWT(token)
	}
	if a.sharedSecret == "" {
		if a.publicKey != nil {
			return ErrUnauthorized
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.sharedSecret)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

type jwtHeader struct {
	Alg string `json:"alg"`
}

type jwtClaims struct {
	Exp int64 `json:"exp"`
}

// verifyJWT checks the signature (RS256 or EdDSA) and expiry of a compact
// JWT. It deliberately supports only the two algorithm families named in
// spec.md's JWT_PUBLIC_KEY configuration — no algorithm-negotiation attack
// surface.
func (a *Authenticator) verifyJWT(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ErrUnauthorized
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return ErrUnauthorized
	}
	var header jwtHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return ErrUnauthorized
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return ErrUnauthorized
	}
	signedInput := parts[0] + "." + parts[1]

	if err := verifySignature(header.Alg, a.publicKey, []byte(signedInput), signature); err != nil {
		return ErrUnauthorized
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ErrUnauthorized
	}
	var claims jwtClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return ErrUnauthorized
	}
	if claims.Exp != 0 && time.Now().Unix() > claims.Exp {
		return ErrUnauthorized
	}

	return nil
}
