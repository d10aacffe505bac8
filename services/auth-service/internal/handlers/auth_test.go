package handlers

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pawmeet/pawmeet/libs/auth"
)

func TestPasswordHashing(t *testing.T) {
	password := "pass123"
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}
	if err := verifyPassword(hash, password); err != nil {
		t.Fatalf("verifyPassword should succeed: %v", err)
	}
	if err := verifyPassword(hash, "wrong-pass"); err == nil {
		t.Fatal("verifyPassword should fail for wrong password")
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", true},
		{"missing", "", "", false},
		{"wrong scheme", "Basic abc", "", false},
		{"empty token", "Bearer ", "", false},
		{"padded token", "Bearer  abc ", "abc", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			got, ok := bearerToken(r)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("bearerToken(%q) = %q, %v; want %q, %v", tc.header, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func testKeyPEM(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return key, pem.EncodeToMemory(block)
}

func testClaims() auth.Claims {
	now := time.Now()
	return auth.Claims{
		Sub:  "user-1",
		Role: "member",
		Iat:  now.Unix(),
		Exp:  now.Add(time.Hour).Unix(),
	}
}

func TestRS256SignVerifyRoundTrip(t *testing.T) {
	_, pemBytes := testKeyPEM(t)
	signer, err := NewRS256Signer(pemBytes, "")
	if err != nil {
		t.Fatalf("NewRS256Signer failed: %v", err)
	}

	token, err := signer.Sign(testClaims())
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.Sub != "user-1" || claims.Role != "member" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if signer.CanRotate() {
		t.Fatal("single-key signer must not advertise rotation")
	}
	if jwks := signer.JWKS(); len(jwks) != 1 || jwks[0]["kid"] == "" {
		t.Fatalf("unexpected jwks: %v", jwks)
	}
}

func TestRotatingSignerSurvivesRotation(t *testing.T) {
	_, pemA := testKeyPEM(t)
	_, pemB := testKeyPEM(t)
	keySet, err := ParseRS256KeySet(string(pemA) + string(pemB))
	if err != nil {
		t.Fatalf("ParseRS256KeySet failed: %v", err)
	}
	if len(keySet) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keySet))
	}

	signer, err := NewRotatingRS256Signer(keySet, "")
	if err != nil {
		t.Fatalf("NewRotatingRS256Signer failed: %v", err)
	}
	if !signer.CanRotate() {
		t.Fatal("expected rotation support")
	}
	if jwks := signer.JWKS(); len(jwks) != 2 {
		t.Fatalf("expected both public keys in jwks, got %d", len(jwks))
	}

	before, err := signer.Sign(testClaims())
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	// Rotate to the other key. Tokens signed earlier must still verify.
	activeKid := signer.JWK()["kid"].(string)
	for kid := range keySet {
		if kid != activeKid {
			if err := signer.SetActiveKid(kid); err != nil {
				t.Fatalf("SetActiveKid(%s) failed: %v", kid, err)
			}
		}
	}
	if signer.JWK()["kid"] == activeKid {
		t.Fatal("active kid did not change")
	}
	if _, err := signer.Verify(before); err != nil {
		t.Fatalf("pre-rotation token no longer verifies: %v", err)
	}

	after, err := signer.Sign(testClaims())
	if err != nil {
		t.Fatalf("sign after rotation failed: %v", err)
	}
	if _, err := signer.Verify(after); err != nil {
		t.Fatalf("post-rotation token does not verify: %v", err)
	}

	if err := signer.SetActiveKid("unknown"); err == nil {
		t.Fatal("expected error for unknown kid")
	}
}
