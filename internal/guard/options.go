package guard

import (
	"fmt"
	"os"
	"strings"

	"github.com/tombee/addonhost/sdk"
)

// options reads typed values out of a dependency's option map.
type options struct {
	dep sdk.Dependency
}

func (o options) string(key string) (string, error) {
	v, ok := o.dep.Options[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %s must be a string, got %T", key, v)
	}
	return s, nil
}

// secret reads key, falling back to the environment variable named by
// key+"_env".
func (o options) secret(key string) (string, error) {
	s, err := o.string(key)
	if err != nil || s != "" {
		return s, err
	}
	env, err := o.string(key + "_env")
	if err != nil || env == "" {
		return "", err
	}
	return os.Getenv(env), nil
}

// strings accepts a list or a comma separated string.
func (o options) strings(key string) ([]string, error) {
	v, ok := o.dep.Options[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		return splitList(t), nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("option %s must be a list of strings, got %T item", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("option %s must be a list of strings, got %T", key, v)
	}
}

// secrets reads a list, falling back to the comma separated environment
// variable named by key+"_env".
func (o options) secrets(key string) ([]string, error) {
	list, err := o.strings(key)
	if err != nil || len(list) > 0 {
		return list, err
	}
	env, err := o.string(key + "_env")
	if err != nil || env == "" {
		return nil, err
	}
	return splitList(os.Getenv(env)), nil
}

func (o options) int(key string, def int) (int, error) {
	v, ok := o.dep.Options[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("option %s must be an integer, got %v", key, t)
		}
		return int(t), nil
	default:
		return 0, fmt.Errorf("option %s must be an integer, got %T", key, v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
