// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/tombee/addonhost/internal/controller/auth"
	"github.com/tombee/addonhost/internal/controller/httputil"
)

const maxLoginBodySize = 64 * 1024

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries an issued token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// handleLogin handles POST /auth/login.
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	cfg := r.config.JWT
	if len(cfg.Secret) == 0 {
		httputil.WriteError(w, http.StatusServiceUnavailable, "login is not configured")
		return
	}

	var body LoginRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxLoginBodySize))
	if err := dec.Decode(&body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Username == "" {
		httputil.WriteError(w, http.StatusBadRequest, "username is required")
		return
	}

	want, ok := r.config.Users[body.Username]
	// compare even for unknown users so timing does not reveal them
	match := passwordMatches(want, body.Password)
	if !ok || !match {
		r.logger.Warn("login rejected", "username", body.Username)
		httputil.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = auth.DefaultTokenTTL
	}
	token, err := auth.GenerateJWT(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   body.Username,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Username: body.Username,
	}, cfg)
	if err != nil {
		r.fail(w, req, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(ttl.Seconds()),
	})
}

// passwordMatches compares a login password with the configured one, which
// is either a bcrypt hash ($2a$, $2b$ or $2y$) or plain text.
func passwordMatches(want, got string) bool {
	if strings.HasPrefix(want, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(want), []byte(got)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
