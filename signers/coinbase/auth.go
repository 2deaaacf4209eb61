package coinbase

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

const (
	apiHost = "api.cdp.coinbase.com"

	bearerTokenTTL = 2 * time.Minute
	walletTokenTTL = 1 * time.Minute
)

// CDPAuth generates the JWTs the CDP API requires. It is immutable after
// construction and safe for concurrent use.
type CDPAuth struct {
	apiKeyName   string
	walletSecret string
	privateKey   crypto.Signer
}

// APIKeyClaims are the JWT claims CDP expects: the standard claims plus the
// request line and, for wallet operations, a hash of the request body.
type APIKeyClaims struct {
	*jwt.Claims
	URI     string `json:"uri"`
	ReqHash string `json:"reqHash,omitempty"`
}

// NewCDPAuth parses the API key secret. The secret may be a PEM block (EC or
// PKCS8) or the base64 form CDP hands out: a raw 64-byte Ed25519 key or a
// DER-encoded key.
func NewCDPAuth(apiKeyName, apiKeySecret, walletSecret string) (*CDPAuth, error) {
	if apiKeyName == "" {
		return nil, fmt.Errorf("apiKeyName must not be empty")
	}

	key, err := parsePrivateKey(apiKeySecret)
	if err != nil {
		return nil, err
	}

	return &CDPAuth{
		apiKeyName:   apiKeyName,
		walletSecret: walletSecret,
		privateKey:   key,
	}, nil
}

func parsePrivateKey(secret string) (crypto.Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("apiKeySecret must not be empty")
	}

	var der []byte
	if block, _ := pem.Decode([]byte(secret)); block != nil {
		der = block.Bytes
	} else {
		raw, err := base64.StdEncoding.DecodeString(secret)
		if err != nil {
			return nil, fmt.Errorf("failed to decode API key secret: not PEM or base64")
		}
		if len(raw) == ed25519.PrivateKeySize {
			return ed25519.PrivateKey(raw), nil
		}
		der = raw
	}

	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	switch key := parsed.(type) {
	case *ecdsa.PrivateKey:
		return key, nil
	case ed25519.PrivateKey:
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported private key type %T: must be ECDSA or Ed25519", parsed)
	}
}

// GenerateBearerToken returns the Authorization bearer token for one request.
func (a *CDPAuth) GenerateBearerToken(method, path string) (string, error) {
	return a.generateJWT(method, path, "", bearerTokenTTL)
}

// GenerateWalletAuthToken returns the X-Wallet-Auth token for a signing
// request; it binds the token to body through a SHA-256 reqHash claim.
func (a *CDPAuth) GenerateWalletAuthToken(method, path string, body []byte) (string, error) {
	var reqHash string
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		reqHash = hex.EncodeToString(sum[:])
	}
	return a.generateJWT(method, path, reqHash, walletTokenTTL)
}

func (a *CDPAuth) generateJWT(method, path, reqHash string, ttl time.Duration) (string, error) {
	alg := jose.EdDSA
	if _, ok := a.privateKey.(*ecdsa.PrivateKey); ok {
		alg = jose.ES256
	}

	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: alg, Key: a.privateKey},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", a.apiKeyName),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create JWT signer: %w", err)
	}

	now := time.Now()
	claims := &APIKeyClaims{
		Claims: &jwt.Claims{
			Subject:   a.apiKeyName,
			Issuer:    "cdp",
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(ttl)),
		},
		URI:     fmt.Sprintf("%s %s%s", method, apiHost, path),
		ReqHash: reqHash,
	}

	token, err := jwt.Signed(sig).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize JWT: %w", err)
	}
	return token, nil
}
