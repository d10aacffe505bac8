package handlers

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"sort"

	"github.com/pawmeet/pawmeet/libs/auth"
)

// TokenSigner issues and verifies access tokens. The rotation surface is a
// no-op for signers that hold a single fixed key.
type TokenSigner interface {
	Sign(claims auth.Claims) (string, error)
	Verify(token string) (*auth.Claims, error)
	JWK() map[string]any
	JWKS() []map[string]any
	CanRotate() bool
	SetActiveKid(kid string) error
	RotateKey() string
}

type noRotation struct{}

func (noRotation) CanRotate() bool           { return false }
func (noRotation) SetActiveKid(string) error { return errors.New("rotation not supported") }
func (noRotation) RotateKey() string         { return "" }

// hs256Signer is the development default. Symmetric keys have no JWK to
// publish, so JWKS stays empty and the gateway falls back to the shared
// secret.
type hs256Signer struct {
	noRotation
	secret string
}

func NewHS256Signer(secret string) TokenSigner {
	return &hs256Signer{secret: secret}
}

func (s *hs256Signer) Sign(claims auth.Claims) (string, error) {
	return auth.SignHS256(claims, s.secret)
}

func (s *hs256Signer) Verify(token string) (*auth.Claims, error) {
	return auth.ParseAndVerifyHS256(token, s.secret)
}

func (s *hs256Signer) JWK() map[string]any    { return nil }
func (s *hs256Signer) JWKS() []map[string]any { return nil }

// signingKey bundles one RSA key with its kid and published JWK.
type signingKey struct {
	key *rsa.PrivateKey
	kid string
	jwk map[string]any
}

func newSigningKey(key *rsa.PrivateKey, kid string) *signingKey {
	if kid == "" {
		kid = fingerprintKid(&key.PublicKey)
	}
	return &signingKey{key: key, kid: kid, jwk: publicJWK(&key.PublicKey, kid)}
}

func (k *signingKey) sign(claims auth.Claims) (string, error) {
	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT", "kid": k.kid})
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := base64.RawURLEncoding.EncodeToString(header) +
		"." + base64.RawURLEncoding.EncodeToString(payload)
	digest := sha256.Sum256([]byte(unsigned))
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func (k *signingKey) verify(token string) (*auth.Claims, error) {
	return auth.VerifyRS256(token, &k.key.PublicKey)
}

type rs256Signer struct {
	noRotation
	*signingKey
}

func NewRS256Signer(pemBytes []byte, kid string) (TokenSigner, error) {
	key, err := decodeRSAPrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}
	return &rs256Signer{signingKey: newSigningKey(key, kid)}, nil
}

func (s *rs256Signer) Sign(claims auth.Claims) (string, error)   { return s.sign(claims) }
func (s *rs256Signer) Verify(token string) (*auth.Claims, error) { return s.verify(token) }
func (s *rs256Signer) JWK() map[string]any                       { return s.jwk }
func (s *rs256Signer) JWKS() []map[string]any                    { return []map[string]any{s.jwk} }

// RotatingSigner signs with one active key out of a set and verifies against
// any key in the set, so tokens issued before a rotation stay valid until
// they expire.
type RotatingSigner struct {
	activeKid string
	keys      map[string]*signingKey
	rotateKey string
}

func NewRotatingRS256Signer(keys map[string]*rsa.PrivateKey, activeKid string) (TokenSigner, error) {
	if len(keys) == 0 {
		return nil, errors.New("no keys provided")
	}
	s := &RotatingSigner{activeKid: activeKid, keys: map[string]*signingKey{}}
	for kid, key := range keys {
		if kid == "" || key == nil {
			continue
		}
		s.keys[kid] = newSigningKey(key, kid)
	}
	if s.activeKid == "" {
		// No kid configured: pick deterministically so restarts agree.
		kids := make([]string, 0, len(s.keys))
		for kid := range s.keys {
			kids = append(kids, kid)
		}
		sort.Strings(kids)
		if len(kids) > 0 {
			s.activeKid = kids[0]
		}
	}
	if s.keys[s.activeKid] == nil {
		return nil, errors.New("active kid not found")
	}
	return s, nil
}

func (s *RotatingSigner) Sign(claims auth.Claims) (string, error) {
	return s.keys[s.activeKid].sign(claims)
}

func (s *RotatingSigner) Verify(token string) (*auth.Claims, error) {
	header, err := auth.ParseHeader(token)
	if err != nil {
		return nil, err
	}
	key := s.keys[header.Kid]
	if header.Kid == "" || key == nil {
		return nil, auth.ErrInvalidToken
	}
	return key.verify(token)
}

func (s *RotatingSigner) JWK() map[string]any {
	return s.keys[s.activeKid].jwk
}

func (s *RotatingSigner) JWKS() []map[string]any {
	out := make([]map[string]any, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k.jwk)
	}
	return out
}

func (s *RotatingSigner) CanRotate() bool { return true }

func (s *RotatingSigner) SetActiveKid(kid string) error {
	if s.keys[kid] == nil {
		return errors.New("unknown kid")
	}
	s.activeKid = kid
	return nil
}

func (s *RotatingSigner) RotateKey() string { return s.rotateKey }

func (s *RotatingSigner) SetRotateKey(key string) { s.rotateKey = key }

// ParseRS256KeySet reads a concatenation of PEM private keys and indexes each
// by its public key fingerprint.
func ParseRS256KeySet(pemBlobs string) (map[string]*rsa.PrivateKey, error) {
	keys := map[string]*rsa.PrivateKey{}
	rest := []byte(pemBlobs)
	for {
		block, remainder := pem.Decode(rest)
		if block == nil {
			break
		}
		rest = remainder
		key, err := rsaKeyFromBlock(block)
		if err != nil {
			return nil, err
		}
		keys[fingerprintKid(&key.PublicKey)] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("no valid rsa keys found")
	}
	return keys, nil
}

func decodeRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	return rsaKeyFromBlock(block)
}

func rsaKeyFromBlock(block *pem.Block) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.New("unsupported private key")
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an rsa private key")
	}
	return key, nil
}

func publicJWK(pub *rsa.PublicKey, kid string) map[string]any {
	return map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// fingerprintKid derives a stable kid from the public modulus.
func fingerprintKid(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}
