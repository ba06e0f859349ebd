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

package guard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tombee/addonhost/internal/controller/auth"
	"github.com/tombee/addonhost/internal/controller/httputil"
	"github.com/tombee/addonhost/internal/expression"
	"github.com/tombee/addonhost/sdk"
)

// Built-in dependency kinds.
const (
	KindAPIKey        = "api_key"
	KindBearerJWT     = "bearer_jwt"
	KindRateLimit     = "rate_limit"
	KindRequireHeader = "require_header"
	KindExpr          = "expr"
)

// limiterIdle is how long a rate limit client is kept after its last request.
const limiterIdle = 10 * time.Minute

type claimsKey struct{}

// ClaimsFromContext returns the claims a bearer_jwt guard verified.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

// Defaults are host settings the built-in guards fall back to.
type Defaults struct {
	// JWT is used by bearer_jwt guards that set no secret of their own.
	JWT auth.JWTConfig

	// Evaluator compiles expr guard conditions.
	Evaluator *expression.Evaluator
}

// Builtin returns a registry with every built-in kind.
func Builtin(d Defaults) *Registry {
	if d.Evaluator == nil {
		d.Evaluator = expression.New()
	}
	r := NewRegistry()
	r.Register(KindAPIKey, apiKey)
	r.Register(KindBearerJWT, func(dep sdk.Dependency) (Middleware, error) { return bearerJWT(dep, d.JWT) })
	r.Register(KindRateLimit, rateLimit)
	r.Register(KindRequireHeader, requireHeader)
	r.Register(KindExpr, func(dep sdk.Dependency) (Middleware, error) { return exprGuard(dep, d.Evaluator) })
	return r
}

// apiKey options: header (default X-API-Key), keys or keys_env.
func apiKey(dep sdk.Dependency) (Middleware, error) {
	opts := options{dep}
	header, err := opts.string("header")
	if err != nil {
		return nil, err
	}
	if header == "" {
		header = "X-API-Key"
	}
	keys, err := opts.secrets("keys")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, errors.New("api_key needs keys or keys_env")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.MatchKey(r.Header.Get(header), keys) {
				httputil.WriteError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// bearerJWT options: secret or secret_env, issuer, audience.
func bearerJWT(dep sdk.Dependency, defaults auth.JWTConfig) (Middleware, error) {
	opts := options{dep}
	cfg := defaults

	secret, err := opts.secret("secret")
	if err != nil {
		return nil, err
	}
	if secret != "" {
		cfg.Secret = []byte(secret)
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("bearer_jwt needs secret, secret_env or a host jwt_secret")
	}
	if cfg.Issuer, err = optionOr(opts, "issuer", cfg.Issuer); err != nil {
		return nil, err
	}
	if cfg.Audience, err = optionOr(opts, "audience", cfg.Audience); err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ExtractBearerToken(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				httputil.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}
			claims, err := auth.ValidateJWT(token, cfg)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				httputil.WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}, nil
}

// rateLimit options: rate ("N/period"), burst, per (ip, global or
// header:<Name>).
func rateLimit(dep sdk.Dependency) (Middleware, error) {
	opts := options{dep}
	spec, err := opts.string("rate")
	if err != nil {
		return nil, err
	}
	rps, burst, err := auth.ParseRateLimit(spec)
	if err != nil {
		return nil, err
	}
	if burst, err = opts.int("burst", burst); err != nil {
		return nil, err
	}
	per, err := opts.string("per")
	if err != nil {
		return nil, err
	}
	keyFn, err := clientKey(per)
	if err != nil {
		return nil, err
	}

	limiter := auth.NewClientLimiter(rps, burst)
	retryAfter := strconv.Itoa(max(1, int(limiter.RetryAfter().Seconds()+0.5)))
	var lastCleanup atomic.Int64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			if last := lastCleanup.Load(); now.Sub(time.Unix(0, last)) > limiterIdle && lastCleanup.CompareAndSwap(last, now.UnixNano()) {
				limiter.Cleanup(limiterIdle)
			}
			if !limiter.Allow(keyFn(r)) {
				w.Header().Set("Retry-After", retryAfter)
				httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func clientKey(per string) (func(*http.Request) string, error) {
	switch {
	case per == "" || per == "ip":
		return func(r *http.Request) string {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				return r.RemoteAddr
			}
			return host
		}, nil
	case per == "global":
		return func(*http.Request) string { return "" }, nil
	case strings.HasPrefix(per, "header:"):
		name := strings.TrimSpace(strings.TrimPrefix(per, "header:"))
		if name == "" {
			return nil, errors.New("rate_limit per header needs a header name")
		}
		return func(r *http.Request) string { return r.Header.Get(name) }, nil
	default:
		return nil, fmt.Errorf("rate_limit per must be ip, global or header:<name>, got %q", per)
	}
}

// requireHeader options: name, value (optional exact match).
func requireHeader(dep sdk.Dependency) (Middleware, error) {
	opts := options{dep}
	name, err := opts.string("name")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.New("require_header needs a name")
	}
	value, err := opts.string("value")
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(name)
			if got == "" || (value != "" && got != value) {
				httputil.WriteError(w, http.StatusBadRequest, "missing or invalid header "+name)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// exprGuard options: condition, status (default 403), message.
func exprGuard(dep sdk.Dependency, eval *expression.Evaluator) (Middleware, error) {
	opts := options{dep}
	condition, err := opts.string("condition")
	if err != nil {
		return nil, err
	}
	prog, err := eval.CompileBool(condition)
	if err != nil {
		return nil, err
	}
	status, err := opts.int("status", http.StatusForbidden)
	if err != nil {
		return nil, err
	}
	if status < 400 || status > 599 {
		return nil, fmt.Errorf("expr status must be 4xx or 5xx, got %d", status)
	}
	message, err := optionOr(opts, "message", "request rejected")
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			env, err := expression.RequestEnv(r)
			if err != nil {
				httputil.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			ok, err := eval.Evaluate(prog, env)
			if err != nil {
				httputil.WriteError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if !ok {
				httputil.WriteError(w, status, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func optionOr(opts options, key, def string) (string, error) {
	s, err := opts.string(key)
	if err != nil || s == "" {
		return def, err
	}
	return s, nil
}
