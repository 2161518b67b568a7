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
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const (
	defaultAuthCookie = "uicheck_auth"
	mockAuthCookie    = "mock_auth_user"

	jwksFetchTimeout = 10 * time.Second
	jwksMinRefresh   = time.Minute
)

type contextKey struct{}

// userIDKey is the context key for the authenticated user's ID (email).
// The associated value is always a string.
var userIDKey contextKey

// UserID returns the authenticated user of r, or "" for anonymous requests.
func UserID(r *http.Request) string {
	if val := r.Context().Value(userIDKey); val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

func withUser(r *http.Request, email string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDKey, normalizeEmail(email)))
}

// normalizeEmail ensures consistent casing and whitespace for User IDs.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// maskEmail obscures an email address for safe logging.
// e.g. "user@example.com" -> "u***@example.com"
func maskEmail(email string) string {
	if email == "" {
		return "<empty>"
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return "****"
	}
	return local[:1] + "***@" + domain
}

// jwksKeys holds the signing keys of the identity provider. A lookup miss
// refetches the set, at most once per jwksMinRefresh.
type jwksKeys struct {
	url string

	mu          sync.RWMutex
	keys        jwk.Set
	lastRefresh time.Time
}

func (k *jwksKeys) refresh() error {
	if k.url == "" {
		return fmt.Errorf("no JWKS URL provided")
	}
	ctx, cancel := context.WithTimeout(context.Background(), jwksFetchTimeout)
	defer cancel()

	set, err := jwk.Fetch(ctx, k.url)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	k.mu.Lock()
	k.keys = set
	k.lastRefresh = time.Now()
	k.mu.Unlock()
	return nil
}

func findKey(set jwk.Set, id string) (any, error) {
	if set == nil {
		return nil, fmt.Errorf("JWKS not initialized")
	}
	key, ok := set.LookupKeyID(id)
	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", id)
	}
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("failed to materialize key: %w", err)
	}
	return raw, nil
}

// keyFunc is a jwt.Keyfunc accepting asymmetric signatures only.
func (k *jwksKeys) keyFunc(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA, *jwt.SigningMethodEd25519:
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("token missing 'kid' header")
	}

	k.mu.RLock()
	keys, last := k.keys, k.lastRefresh
	k.mu.RUnlock()

	key, err := findKey(keys, kid)
	if err == nil || time.Since(last) <= jwksMinRefresh {
		return key, err
	}
	if err := k.refresh(); err != nil {
		log.Printf("Error refreshing JWKS: %v", err)
		return nil, err
	}
	k.mu.RLock()
	keys = k.keys
	k.mu.RUnlock()
	return findKey(keys, kid)
}

// jwtAuthMiddleware identifies users by a JWT cookie signed by a key of the
// JWKS at opts.AuthJWKSURL. Requests without a valid token are anonymous.
func jwtAuthMiddleware(opts Options, next http.Handler) http.Handler {
	keys := &jwksKeys{url: opts.AuthJWKSURL}
	if opts.AuthJWKSURL != "" {
		if err := keys.refresh(); err != nil {
			log.Printf("Warning: Failed to fetch JWKS on startup: %v", err)
		}
	} else {
		log.Println("Warning: No AuthJWKSURL provided. All requests are anonymous unless MockAuth is used.")
	}
	cookieName := opts.AuthCookieName
	if cookieName == "" {
		cookieName = defaultAuthCookie
	}
	parser := jwt.NewParser(jwt.WithExpirationRequired())

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, err := parser.Parse(cookie.Value, keys.keyFunc)
		if err != nil || !token.Valid {
			if opts.Debug {
				log.Printf("JWT Validation failed: %v", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if email, ok := claims["email"].(string); ok && email != "" {
				next.ServeHTTP(w, withUser(r, email))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// mockAuthMiddleware trusts a plain cookie naming the user. Local use only.
func mockAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(mockAuthCookie); err == nil && cookie.Value != "" {
			next.ServeHTTP(w, withUser(r, cookie.Value))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireUser rejects anonymous requests.
func requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if UserID(r) == "" {
			http.Error(w, "Unauthenticated", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
