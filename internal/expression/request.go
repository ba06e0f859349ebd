package expression

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tombee/addonhost/internal/log"
)

// MaxBodyBytes bounds how much of a request body is decoded into an
// expression environment.
const MaxBodyBytes = 1 << 20

// RequestEnv builds the variables an expression sees for r:
//
//	method, path, params, query, headers, body
//
// params holds the path wildcards of the matched pattern. body is the
// decoded JSON body, or the raw text when it is not JSON. The request body
// is restored so later handlers can read it again.
func RequestEnv(r *http.Request) (map[string]any, error) {
	env := map[string]any{
		"method":  r.Method,
		"path":    r.URL.Path,
		"params":  params(r),
		"query":   flatten(r.URL.Query()),
		"headers": flatten(r.Header),
		"body":    nil,
	}

	if r.Body == nil || r.Body == http.NoBody {
		return env, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(data) > MaxBodyBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", MaxBodyBytes)
	}
	r.Body = io.NopCloser(bytes.NewReader(data))

	if len(bytes.TrimSpace(data)) == 0 {
		return env, nil
	}
	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		env["body"] = string(data)
	} else {
		env["body"] = body
	}
	return env, nil
}

// flatten keeps the first value of each key.
func flatten(values map[string][]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func params(r *http.Request) map[string]any {
	out := map[string]any{}
	for k, v := range log.PathParams(r) {
		out[k] = v
	}
	return out
}
