//go:build !((linux || darwin || freebsd) && cgo)

package plugin

import (
	hosterrors "github.com/tombee/addonhost/pkg/errors"
	"github.com/tombee/addonhost/sdk"
)

// NativeLoader reports native plugins as unsupported on this platform.
type NativeLoader struct{}

// NewNativeLoader creates a native plugin loader.
func NewNativeLoader() *NativeLoader { return &NativeLoader{} }

// Extensions implements Loader.
func (*NativeLoader) Extensions() []string { return []string{".so"} }

// Load implements Loader.
func (*NativeLoader) Load(path string) (*sdk.Unit, error) {
	return nil, &hosterrors.LoadError{Path: path, Reason: "native plugins are not supported on this platform"}
}
