package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecute_Success(t *testing.T) {
	r := New()
	res, err := r.Execute(context.Background(), Command{
		Path: "/bin/echo",
		Args: []string{"hello"},
	})
	require.NoError(t, err)
	require.Equal(t, "hello\n", res.Stdout)
	require.Equal(t, 1, res.Attempts)
}

func TestExecute_NonZeroExitRetriesIdempotent(t *testing.T) {
	r := New(WithMaxAttempts(3))
	res, err := r.Execute(context.Background(), Command{
		Path: "/bin/false",
		Args: []string{"devices"},
	})
	require.Error(t, err)
	require.Equal(t, 3, res.Attempts)
}

func TestExecute_NonZeroExitDoesNotRetryWriteCommand(t *testing.T) {
	r := New(WithMaxAttempts(3))
	res, err := r.Execute(context.Background(), Command{
		Path: "/bin/false",
		Args: []string{"install", "foo.apk"},
	})
	require.Error(t, err)
	require.Equal(t, 1, res.Attempts)
}

func TestExecute_Timeout(t *testing.T) {
	r := New()
	_, err := r.Execute(context.Background(), Command{
		Path:    "/bin/sleep",
		Args:    []string{"5"},
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
}

func TestExecute_NotFound(t *testing.T) {
	r := New()
	_, err := r.Execute(context.Background(), Command{
		Path: "/no/such/binary-xyz",
		Args: []string{"devices"},
	})
	require.Error(t, err)
}
