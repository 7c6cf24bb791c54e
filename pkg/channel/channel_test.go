package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autopilot/pkg/discovery"
	"github.com/entrhq/autopilot/pkg/logging"
)

var upgrader = websocket.Upgrader{}

// responder handles one inbound request on the test endpoint's socket. It
// runs on the connection's single reader goroutine, so writing to conn is
// safe without extra locking.
type responder func(conn *websocket.Conn, id int64, method string)

// echoResponder acknowledges every request with an empty result.
func echoResponder(conn *websocket.Conn, id int64, method string) {
	conn.WriteJSON(map[string]interface{}{"id": id, "result": map[string]string{"method": method}})
}

func newTestEndpoint(t *testing.T, respond responder) discovery.Descriptor {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		targets := []Target{
			{ID: "bg", Title: "background", Type: "background_page", DebuggerURL: "ws://" + r.Host + "/devtools/page/bg"},
			{ID: "t1", Title: "main window", Type: "page", DebuggerURL: "ws://" + r.Host + "/devtools/page/t1"},
		}
		json.NewEncoder(w).Encode(targets)
	})
	mux.HandleFunc("/devtools/page/t1", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg struct {
				ID     int64  `json:"id"`
				Method string `json:"method"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			respond(conn, msg.ID, msg.Method)
		}
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return discovery.Descriptor{AuxiliaryPort: port, ControlPort: port, Token: "tok"}
}

func connectTest(t *testing.T, respond responder) *Channel {
	t.Helper()
	desc := newTestEndpoint(t, respond)
	c, err := Connect(context.Background(), desc, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestConnect_HandshakeAndCall(t *testing.T) {
	c := connectTest(t, echoResponder)

	result, err := c.Call(context.Background(), "Page.navigate", map[string]string{"url": "about:blank"}, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"Page.navigate"}`, string(result))
}

func TestConnect_NoPageTarget(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Target{})
	}))
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	_, err = Connect(context.Background(), discovery.Descriptor{ControlPort: port}, logging.NewNopLogger())
	require.ErrorIs(t, err, ErrConnect)
}

func TestChannel_IDsStrictlyIncrease(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []int64
	)
	c := connectTest(t, func(conn *websocket.Conn, id int64, method string) {
		mu.Lock()
		ids = append(ids, id)
		mu.Unlock()
		echoResponder(conn, id, method)
	})

	for i := 0; i < 3; i++ {
		_, err := c.Call(context.Background(), "noop", nil, time.Second)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	// The handshake consumed id 1.
	require.Len(t, ids, 4)
	for i, id := range ids {
		assert.Equal(t, int64(i+1), id)
	}
}

func TestChannel_CallTimeoutLeavesChannelUsable(t *testing.T) {
	c := connectTest(t, func(conn *websocket.Conn, id int64, method string) {
		if method == "slow.op" {
			return // never answered
		}
		echoResponder(conn, id, method)
	})

	_, err := c.Call(context.Background(), "slow.op", nil, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrCallTimeout)

	// Only the timed-out call is rejected; the channel itself stays open.
	_, err = c.Call(context.Background(), "noop", nil, time.Second)
	assert.NoError(t, err)
}

func TestChannel_UnmatchedResponsesDiscarded(t *testing.T) {
	c := connectTest(t, func(conn *websocket.Conn, id int64, method string) {
		// A reply nobody asked for, then the real one.
		conn.WriteJSON(map[string]interface{}{"id": 99999, "result": map[string]string{}})
		echoResponder(conn, id, method)
	})

	result, err := c.Call(context.Background(), "noop", nil, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"noop"}`, string(result))
}

func TestChannel_RemoteError(t *testing.T) {
	c := connectTest(t, func(conn *websocket.Conn, id int64, method string) {
		if method == "bad.op" {
			conn.WriteJSON(map[string]interface{}{
				"id":    id,
				"error": map[string]string{"message": "no such method"},
			})
			return
		}
		echoResponder(conn, id, method)
	})

	_, err := c.Call(context.Background(), "bad.op", nil, time.Second)

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "no such method", remoteErr.Message)

	// A remote error is a valid response, not a transport failure.
	_, err = c.Call(context.Background(), "noop", nil, time.Second)
	assert.NoError(t, err)
}

func TestChannel_CloseRejectsPendingCalls(t *testing.T) {
	c := connectTest(t, func(conn *websocket.Conn, id int64, method string) {
		if method == "slow.op" {
			return
		}
		echoResponder(conn, id, method)
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "slow.op", nil, 10*time.Second)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	c.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("pending call was not rejected on close")
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not signalled after close")
	}
	assert.NoError(t, c.Err())

	_, err := c.Call(context.Background(), "noop", nil, time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannel_TransportErrorSignalsDone(t *testing.T) {
	var (
		mu    sync.Mutex
		conns []*websocket.Conn
	)
	c := connectTest(t, func(conn *websocket.Conn, id int64, method string) {
		mu.Lock()
		conns = append(conns, conn)
		mu.Unlock()
		echoResponder(conn, id, method)
	})

	mu.Lock()
	require.NotEmpty(t, conns)
	serverConn := conns[0]
	mu.Unlock()

	// Kill the transport from the server side.
	serverConn.Close()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not signalled after transport failure")
	}
	assert.Error(t, c.Err())
}

func TestChannel_ContextCancellation(t *testing.T) {
	c := connectTest(t, func(conn *websocket.Conn, id int64, method string) {
		if method == "slow.op" {
			return
		}
		echoResponder(conn, id, method)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Call(ctx, "slow.op", nil, 10*time.Second)
	require.True(t, errors.Is(err, context.Canceled))
}
