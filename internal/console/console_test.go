package console

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

type echoExecutor struct {
	fail bool
}

func (e *echoExecutor) Execute(_ context.Context, cmd schema.Command) (schema.Command, error) {
	if e.fail {
		return schema.Command{}, errors.New("boom")
	}
	return schema.Command{
		Type:    schema.CommandTypeResponse,
		SubType: cmd.SubType,
		Body:    "echo:" + cmd.Body,
	}, nil
}

func socketPath(t *testing.T) string {
	t.Helper()
	// Unix socket paths have a tight length limit; stay short.
	return filepath.Join(t.TempDir(), "c.sock")
}

func startServer(t *testing.T, executor Executor) *Server {
	t.Helper()
	srv, err := NewServer(socketPath(t), executor)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = srv.Close()
	})
	return srv
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer("", &echoExecutor{})
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = NewServer("/tmp/x.sock", nil)
	assert.Error(t, err)
}

func TestCommandRoundTrip(t *testing.T) {
	srv := startServer(t, &echoExecutor{})

	client, err := Dial(srv.Path())
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Do(schema.Command{
		Type:    schema.CommandTypeQuery,
		SubType: schema.CommandSubTypeListOrders,
		Body:    "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, schema.CommandTypeResponse, resp.Type)
	assert.Equal(t, schema.CommandSubTypeListOrders, resp.SubType)
	assert.Equal(t, "echo:hello", resp.Body)
}

func TestSequentialCommandsOnOneConnection(t *testing.T) {
	srv := startServer(t, &echoExecutor{})

	client, err := Dial(srv.Path())
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 5; i++ {
		resp, err := client.Do(schema.Command{SubType: schema.CommandSubTypePnLSnapshot, Body: "x"})
		require.NoError(t, err)
		require.Equal(t, "echo:x", resp.Body)
	}
}

func TestExecutorErrorReportedToClient(t *testing.T) {
	srv := startServer(t, &echoExecutor{fail: true})

	client, err := Dial(srv.Path())
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Do(schema.Command{SubType: schema.CommandSubTypeListOrders})
	require.NoError(t, err)
	assert.Equal(t, schema.CommandTypeResponse, resp.Type)
	assert.Contains(t, resp.Body, "execute:")
}

func TestCloseWithoutContextCancel(t *testing.T) {
	srv, err := NewServer(socketPath(t), &echoExecutor{})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))

	client, err := Dial(srv.Path())
	require.NoError(t, err)
	defer client.Close()
	resp, err := client.Do(schema.Command{Body: "up"})
	require.NoError(t, err)
	require.Equal(t, "echo:up", resp.Body)

	// Close must return even though the context never cancels and a
	// client connection is still open.
	done := make(chan error, 1)
	go func() { done <- srv.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestStartRemovesStaleSocket(t *testing.T) {
	path := socketPath(t)

	first, err := NewServer(path, &echoExecutor{})
	require.NoError(t, err)
	ctx1, cancel1 := context.WithCancel(context.Background())
	require.NoError(t, first.Start(ctx1))
	cancel1()
	require.NoError(t, first.Close())

	// The stale file, if any, must not block a fresh listener.
	second, err := NewServer(path, &echoExecutor{})
	require.NoError(t, err)
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	require.NoError(t, second.Start(ctx2))
	defer second.Close()

	client, err := Dial(path)
	require.NoError(t, err)
	defer client.Close()
	resp, err := client.Do(schema.Command{Body: "up"})
	require.NoError(t, err)
	assert.Equal(t, "echo:up", resp.Body)
}

func TestStartRefusesNonSocketPath(t *testing.T) {
	path := socketPath(t)
	require.NoError(t, os.WriteFile(path, []byte("not a socket"), 0o644))

	srv, err := NewServer(path, &echoExecutor{})
	require.NoError(t, err)
	assert.ErrorIs(t, srv.Start(context.Background()), ErrPathNotSocket)
}

func TestDialMissingSocket(t *testing.T) {
	_, err := Dial(filepath.Join(t.TempDir(), "gone.sock"))
	assert.Error(t, err)
}
