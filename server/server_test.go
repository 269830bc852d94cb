//go:build linux || darwin

package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipckit/jsonipc/api"
	"github.com/ipckit/jsonipc/client"
	"github.com/ipckit/jsonipc/rpc"
)

func testRouter() *rpc.Router {
	r := rpc.NewRouter()
	r.RegisterMethod("say_hello", func(json.RawMessage) (any, error) {
		return "hello", nil
	})
	r.RegisterMethod("echo", func(params json.RawMessage) (any, error) {
		var s []string
		if err := json.Unmarshal(params, &s); err != nil || len(s) == 0 {
			return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: "expected one string"}
		}
		return s[0], nil
	})
	return r
}

func startServer(t *testing.T, h api.Handler, opts ...ServerOption) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.ipc")
	cfg := DefaultConfig()
	cfg.SocketPath = path
	cfg.PollTimeout = 10 * time.Millisecond

	s, err := New(cfg, h, opts...)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run() }()
	t.Cleanup(func() {
		s.Close()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrServerClosed)
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after Close")
		}
	})
	return s
}

func dial(t *testing.T, s *Server) *client.Client {
	t.Helper()
	c, err := client.Dial(s.SocketPath(), client.WithTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSayHello(t *testing.T) {
	s := startServer(t, testRouter())
	c := dial(t, s)

	resp, err := c.Call([]byte(`{"jsonrpc":"2.0","method":"say_hello","params":[],"id":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","result":"hello","id":1}`, string(resp))
}

func TestSingleReadFramingRoundTrip(t *testing.T) {
	s := startServer(t, testRouter(), WithFraming(FramingSingleRead))

	c, err := client.Dial(s.SocketPath(), client.WithTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	// No delimiter in either direction: one write is the request, one
	// read is the reply.
	resp, err := c.CallRaw([]byte(`{"jsonrpc":"2.0","method":"say_hello","params":[],"id":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","result":"hello","id":1}`, string(resp))

	resp, err = c.CallRaw([]byte(`{"jsonrpc":"2.0","method":"echo","params":["raw"],"id":2}`))
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","result":"raw","id":2}`, string(resp))
}

func TestSequentialRequestsOnOneConnection(t *testing.T) {
	s := startServer(t, testRouter())
	c := dial(t, s)

	for i := 0; i < 10; i++ {
		req := fmt.Sprintf(`{"jsonrpc":"2.0","method":"echo","params":["m%d"],"id":%d}`, i, i)
		resp, err := c.Call([]byte(req))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf(`{"jsonrpc":"2.0","result":"m%d","id":%d}`, i, i), string(resp))
	}
}

func TestNotificationKeepsConnectionOpen(t *testing.T) {
	s := startServer(t, testRouter())
	c := dial(t, s)

	require.NoError(t, c.Notify([]byte(`{"jsonrpc":"2.0","method":"say_hello","params":[]}`)))

	resp, err := c.Call([]byte(`{"jsonrpc":"2.0","method":"say_hello","params":[],"id":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","result":"hello","id":1}`, string(resp))
}

func TestConcurrentClientsGetOwnResponses(t *testing.T) {
	s := startServer(t, testRouter())

	const clients = 16
	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := client.Dial(s.SocketPath(), client.WithTimeout(5*time.Second))
			if err != nil {
				errs <- err
				return
			}
			defer c.Close()
			for j := 0; j < 5; j++ {
				req := fmt.Sprintf(`{"jsonrpc":"2.0","method":"echo","params":["c%d-%d"],"id":%d}`, i, j, j)
				resp, err := c.Call([]byte(req))
				if err != nil {
					errs <- fmt.Errorf("client %d: %w", i, err)
					return
				}
				want := fmt.Sprintf(`{"jsonrpc":"2.0","result":"c%d-%d","id":%d}`, i, j, j)
				if string(resp) != want {
					errs <- fmt.Errorf("client %d got %s, want %s", i, resp, want)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestSlotTableGrowsPastReservedCapacity(t *testing.T) {
	s := startServer(t, testRouter())

	// More simultaneous connections than the reserved slot capacity.
	conns := make([]*client.Client, 0, initialSlots*3)
	for i := 0; i < initialSlots*3; i++ {
		conns = append(conns, dial(t, s))
	}
	for i, c := range conns {
		req := fmt.Sprintf(`{"jsonrpc":"2.0","method":"echo","params":["n%d"],"id":1}`, i)
		resp, err := c.Call([]byte(req))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf(`{"jsonrpc":"2.0","result":"n%d","id":1}`, i), string(resp))
	}
}

func TestSlotReuseAfterDisconnect(t *testing.T) {
	s := startServer(t, testRouter())

	for i := 0; i < 20; i++ {
		c, err := client.Dial(s.SocketPath(), client.WithTimeout(5*time.Second))
		require.NoError(t, err)
		resp, err := c.Call([]byte(`{"jsonrpc":"2.0","method":"say_hello","params":[],"id":1}`))
		require.NoError(t, err)
		assert.Equal(t, `{"jsonrpc":"2.0","result":"hello","id":1}`, string(resp))
		require.NoError(t, c.Close())
	}
}

func TestPollModeServesRequests(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poll.ipc")
	cfg := DefaultConfig()
	cfg.SocketPath = path
	s, err := New(cfg, testRouter())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// Cooperative embedding: the host loop drives bounded single cycles.
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := s.Poll(10 * time.Millisecond); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() { close(stop) })

	c, err := client.Dial(path, client.WithTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	resp, err := c.Call([]byte(`{"jsonrpc":"2.0","method":"say_hello","params":[],"id":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","result":"hello","id":1}`, string(resp))
}

func TestStaleSocketFileRemovedOnStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.ipc")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	cfg := DefaultConfig()
	cfg.SocketPath = path
	s, err := New(cfg, testRouter())
	require.NoError(t, err)
	defer s.Close()
}

func TestCloseRemovesSocketFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "close.ipc")
	cfg := DefaultConfig()
	cfg.SocketPath = path
	s, err := New(cfg, testRouter())
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Idempotent.
	require.NoError(t, s.Close())
	_, err = s.Poll(0)
	assert.ErrorIs(t, err, ErrServerClosed)
}

func TestNewValidation(t *testing.T) {
	_, err := New(&Config{}, testRouter())
	assert.Error(t, err, "missing socket path must fail setup")

	cfg := DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "v.ipc")
	_, err = New(cfg, nil)
	assert.Error(t, err, "missing handler must fail setup")
}

func TestMisbehavingClientDoesNotAffectOthers(t *testing.T) {
	s := startServer(t, testRouter())

	// Garbage that is valid UTF-8 yields a JSON-RPC error response.
	bad := dial(t, s)
	resp, err := bad.Call([]byte(`this is not json`))
	require.NoError(t, err)
	assert.Contains(t, string(resp), `"code":-32700`)

	// A client sending invalid UTF-8 gets torn down...
	abuser := dial(t, s)
	_, err = abuser.Call([]byte{0xff, 0xfe, 0xfd})
	require.Error(t, err)

	// ...while a well-behaved client is unaffected.
	good := dial(t, s)
	resp, err = good.Call([]byte(`{"jsonrpc":"2.0","method":"say_hello","params":[],"id":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","result":"hello","id":1}`, string(resp))
}
