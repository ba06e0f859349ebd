package serve

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/addonhost/internal/commands/shared"
	"github.com/tombee/addonhost/internal/controller"
	hosterrors "github.com/tombee/addonhost/pkg/errors"
)

func stubRun(t *testing.T, err error) *controller.RunOptions {
	t.Helper()
	var got controller.RunOptions
	orig := runHost
	runHost = func(opts controller.RunOptions) error {
		got = opts
		return err
	}
	t.Cleanup(func() { runHost = orig })
	return &got
}

func TestServePassesOverrides(t *testing.T) {
	got := stubRun(t, nil)

	cmd := NewCommand()
	cmd.SetArgs([]string{"--addr", "127.0.0.1:9000", "--addons-dir", "/srv/addons", "--log-level", "warn"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "127.0.0.1:9000", got.Addr)
	assert.Equal(t, "/srv/addons", got.AddonsDir)
	assert.Equal(t, "warn", got.LogLevel)
	assert.Nil(t, got.Watch, "watch left to config when the flag is absent")
}

func TestServeWatchFlag(t *testing.T) {
	for _, args := range [][]string{{"--watch"}, {"--watch=false"}} {
		got := stubRun(t, nil)
		cmd := NewCommand()
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute())
		require.NotNil(t, got.Watch)
		assert.Equal(t, args[0] == "--watch", *got.Watch)
	}
}

func TestServeCollisionExitCode(t *testing.T) {
	stubRun(t, &hosterrors.OperationIDCollisionError{})

	cmd := NewCommand()
	cmd.SetArgs([]string{})
	cmd.SilenceErrors = true
	err := cmd.Execute()

	var exitErr *shared.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, shared.ExitCollision, exitErr.Code)
}
