// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package report

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// testIdP serves a JWKS holding the public halves of its keys.
type testIdP struct {
	mu   sync.Mutex
	keys map[string]*rsa.PrivateKey
	srv  *httptest.Server
}

func newTestIdP(t *testing.T, kids ...string) *testIdP {
	t.Helper()
	idp := &testIdP{keys: make(map[string]*rsa.PrivateKey)}
	for _, kid := range kids {
		idp.addKey(t, kid)
	}
	idp.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idp.mu.Lock()
		defer idp.mu.Unlock()
		var set struct {
			Keys []map[string]string `json:"keys"`
		}
		for kid, k := range idp.keys {
			set.Keys = append(set.Keys, map[string]string{
				"kty": "RSA",
				"kid": kid,
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(k.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.E)).Bytes()),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(idp.srv.Close)
	return idp
}

func (idp *testIdP) addKey(t *testing.T, kid string) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	idp.mu.Lock()
	idp.keys[kid] = k
	idp.mu.Unlock()
	return k
}

func (idp *testIdP) sign(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	idp.mu.Lock()
	k := idp.keys[kid]
	idp.mu.Unlock()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(k)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

var whoami = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, UserID(r))
})

func userOf(t *testing.T, h http.Handler, cookie *http.Cookie) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Body.String()
}

func TestJWTAuthMiddleware(t *testing.T) {
	idp := newTestIdP(t, "k1")
	h := jwtAuthMiddleware(Options{AuthJWKSURL: idp.srv.URL, AuthCookieName: "tok"}, whoami)
	exp := time.Now().Add(time.Hour).Unix()

	hmac := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": "mallory@example.com", "exp": exp})
	hmac.Header["kid"] = "k1"
	forged, err := hmac.SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		cookie *http.Cookie
		want   string
	}{
		{"NoCookie", nil, ""},
		{"Valid", &http.Cookie{Name: "tok", Value: idp.sign(t, "k1", jwt.MapClaims{"email": " Alice@Example.com", "exp": exp})}, "alice@example.com"},
		{"WrongCookieName", &http.Cookie{Name: defaultAuthCookie, Value: idp.sign(t, "k1", jwt.MapClaims{"email": "alice@example.com", "exp": exp})}, ""},
		{"Expired", &http.Cookie{Name: "tok", Value: idp.sign(t, "k1", jwt.MapClaims{"email": "alice@example.com", "exp": time.Now().Add(-time.Hour).Unix()})}, ""},
		{"NoExpiry", &http.Cookie{Name: "tok", Value: idp.sign(t, "k1", jwt.MapClaims{"email": "alice@example.com"})}, ""},
		{"NoEmail", &http.Cookie{Name: "tok", Value: idp.sign(t, "k1", jwt.MapClaims{"sub": "42", "exp": exp})}, ""},
		{"HMAC", &http.Cookie{Name: "tok", Value: forged}, ""},
		{"Garbage", &http.Cookie{Name: "tok", Value: "not.a.jwt"}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := userOf(t, h, tc.cookie); got != tc.want {
				t.Errorf("user = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestJWKSRotation(t *testing.T) {
	idp := newTestIdP(t, "k1")
	keys := &jwksKeys{url: idp.srv.URL}
	if err := keys.refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	idp.addKey(t, "k2")
	tok := idp.sign(t, "k2", jwt.MapClaims{"email": "bob@example.com", "exp": time.Now().Add(time.Hour).Unix()})

	// A fresh key set is not refetched on a miss.
	if _, err := jwt.Parse(tok, keys.keyFunc); err == nil {
		t.Fatal("token with unknown kid accepted before refresh")
	}
	keys.mu.Lock()
	keys.lastRefresh = time.Now().Add(-2 * jwksMinRefresh)
	keys.mu.Unlock()
	if _, err := jwt.Parse(tok, keys.keyFunc); err != nil {
		t.Fatalf("token rejected after rotation: %v", err)
	}
}

func TestMockAuthMiddleware(t *testing.T) {
	h := mockAuthMiddleware(whoami)
	if got := userOf(t, h, &http.Cookie{Name: mockAuthCookie, Value: "Test@Example.com"}); got != "test@example.com" {
		t.Errorf("user = %q", got)
	}
	if got := userOf(t, h, nil); got != "" {
		t.Errorf("anonymous user = %q", got)
	}
}

func TestRequireUser(t *testing.T) {
	h := mockAuthMiddleware(requireUser(whoami))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d", rec.Code)
	}
}

func TestMaskEmail(t *testing.T) {
	for in, want := range map[string]string{
		"user@example.com": "u***@example.com",
		"":                 "<empty>",
		"nobody":           "****",
		"@example.com":     "****",
		"a@b@c":            "****",
	} {
		if got := maskEmail(in); got != want {
			t.Errorf("maskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
