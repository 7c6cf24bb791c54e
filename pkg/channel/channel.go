// Package channel implements the persistent request/response channel to the
// target's debugging endpoint. Many concurrent calls are multiplexed over a
// single WebSocket connection and matched to their callers strictly by id.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/entrhq/autopilot/pkg/discovery"
	"github.com/entrhq/autopilot/pkg/logging"
)

const (
	bootstrapTimeout = 5 * time.Second
	handshakeTimeout = 5 * time.Second
)

// Target is one debuggable target advertised by the endpoint's /json list.
type Target struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	DebuggerURL string `json:"debuggerUrl"`
}

// request is the wire envelope for one call.
type request struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// response is the wire envelope for one reply. Messages without an id are
// unsolicited notifications and are discarded.
type response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Channel is a live control channel. It never reconnects internally: any
// transport error kills it, rejects every pending call, and signals Done so
// the owner rediscovers a fresh descriptor.
type Channel struct {
	conn   *websocket.Conn
	logger *logging.Logger

	nextID atomic.Int64

	writeMu sync.Mutex // gorilla allows a single concurrent writer

	mu      sync.Mutex
	pending map[int64]chan callResult
	dead    bool

	done     chan struct{}
	closeErr error
	once     sync.Once
}

// Connect bootstraps a channel from a verified descriptor: fetch the target
// list over HTTP, dial the first page target's debugger socket, and perform
// the remote-execution handshake. Any failure wraps ErrConnect, which
// invalidates the descriptor.
func Connect(ctx context.Context, desc discovery.Descriptor, logger *logging.Logger) (*Channel, error) {
	target, err := pageTarget(ctx, desc.ControlPort)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target.DebuggerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnect, target.DebuggerURL, err)
	}

	c := &Channel{
		conn:    conn,
		logger:  logger,
		pending: make(map[int64]chan callResult),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	// Enabling the execution domain doubles as the connection handshake.
	if _, err := c.Call(ctx, "Runtime.enable", nil, handshakeTimeout); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: handshake: %v", ErrConnect, err)
	}

	logger.Infof("control channel connected to %s (target %q)", target.DebuggerURL, target.Title)
	return c, nil
}

// pageTarget fetches the /json target list and returns the first entry of
// type "page" that advertises a debugger socket.
func pageTarget(ctx context.Context, port int) (Target, error) {
	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d/json", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Target{}, fmt.Errorf("failed to create bootstrap request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Target{}, fmt.Errorf("bootstrap request failed: %w", err)
	}
	defer resp.Body.Close()

	var targets []Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return Target{}, fmt.Errorf("failed to decode target list: %w", err)
	}

	for _, t := range targets {
		if t.Type == "page" && t.DebuggerURL != "" {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("no page target available on port %d", port)
}

// Call sends {id, method, params} and suspends the caller until its own
// response, its own timeout, or channel death. A timeout rejects only this
// call; the channel stays open and the late response, if any, is discarded.
func (c *Channel) Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan callResult, 1)

	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(request{ID: id, Method: method, Params: params}); err != nil {
		c.unregister(id)
		c.fail(fmt.Errorf("write failed: %w", err))
		return nil, ErrClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.result, res.err
	case <-timer.C:
		c.unregister(id)
		return nil, fmt.Errorf("%w: %s after %s", ErrCallTimeout, method, timeout)
	case <-ctx.Done():
		c.unregister(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *Channel) write(req request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(req)
}

func (c *Channel) unregister(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop dispatches inbound messages to pending calls by id. Messages
// with no matching pending call are discarded: this core has no use for
// unsolicited notifications.
func (c *Channel) readLoop() {
	for {
		var msg response
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.fail(err)
			return
		}
		if msg.ID == 0 {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.mu.Unlock()
		if !ok {
			continue
		}

		if msg.Error != nil {
			ch <- callResult{err: &RemoteError{Message: msg.Error.Message}}
			continue
		}
		ch <- callResult{result: msg.Result}
	}
}

// fail marks the channel dead exactly once: the transport is closed, every
// pending call is rejected, and Done is signalled.
func (c *Channel) fail(cause error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.dead = true
		pending := c.pending
		c.pending = make(map[int64]chan callResult)
		c.mu.Unlock()

		c.closeErr = cause
		c.conn.Close()
		for _, ch := range pending {
			ch <- callResult{err: ErrClosed}
		}
		close(c.done)

		if cause != nil && c.logger != nil {
			c.logger.Warnf("control channel closed: %v", cause)
		}
	})
}

// Close shuts the channel down deliberately, rejecting any pending calls.
// Safe to call multiple times.
func (c *Channel) Close() {
	c.fail(nil)
}

// Done is closed when the channel dies, deliberately or not. This is the
// exclusive signal that forces the owner to rediscover a fresh descriptor.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the transport error that killed the channel, or nil when the
// channel was closed deliberately or is still alive.
func (c *Channel) Err() error {
	select {
	case <-c.done:
		return c.closeErr
	default:
		return nil
	}
}
