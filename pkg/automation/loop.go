package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/autopilot/pkg/channel"
	"github.com/entrhq/autopilot/pkg/config"
	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/safety"
)

const defaultCallTimeout = 5 * time.Second

// Caller issues correlated requests against the remote endpoint. Satisfied
// by *channel.Channel.
type Caller interface {
	Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error)
}

// Loop is the timed driver that runs one decision cycle per tick. A failing
// cycle is logged and swallowed; only Stop ends the loop.
type Loop struct {
	caller   Caller
	filter   *safety.Filter
	events   *Broadcaster
	logger   *logging.Logger
	interval func() time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLoop creates a loop over an established control channel.
func NewLoop(caller Caller, filter *safety.Filter, section *config.AutomationSection, events *Broadcaster, logger *logging.Logger) *Loop {
	return &Loop{
		caller:   caller,
		filter:   filter,
		events:   events,
		logger:   logger,
		interval: section.PollInterval,
	}
}

// Start begins ticking. Calling Start on a running loop is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true

	go l.run(ctx, l.done)
}

// Stop halts the loop. It is observed within one tick; when Stop returns no
// further cycle executes. Safe to call on a stopped loop.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		// The interval is re-read every tick so configuration updates are
		// observed at the next natural tick, never mid-cycle.
		timer := time.NewTimer(l.interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		result, err := l.runCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Timeouts, evaluation errors and channel death all land here;
			// the next tick simply tries again.
			l.logger.Warnf("poll cycle failed: %v", err)
			continue
		}

		l.events.Publish(Event{Type: EventPollResult, Result: &result})
		if result.ClickedCount > 0 {
			l.logger.Infof("poll cycle activated %d element(s)", result.ClickedCount)
		} else {
			l.logger.Debugf("poll cycle skipped: %s", result.SkipReason)
		}
	}
}

// runCycle executes one decision cycle: snapshot the page, apply the
// precedence chain against an immutable blocklist snapshot, and activate
// the survivors.
func (l *Loop) runCycle(ctx context.Context) (PollResult, error) {
	params := DefaultParams(l.filter.Snapshot())

	snapshot, err := l.evaluateSnapshot(ctx)
	if err != nil {
		return PollResult{}, err
	}

	decision := Decide(snapshot, params)
	if len(decision.ClickIndices) == 0 {
		return PollResult{SkipReason: decision.SkipReason}, nil
	}

	clicked, err := l.evaluateClick(ctx, decision.ClickIndices)
	if err != nil {
		return PollResult{}, err
	}
	return PollResult{ClickedCount: clicked}, nil
}

// evaluateResult is the remote-execution envelope for an evaluate call.
type evaluateResult struct {
	Result struct {
		Value json.RawMessage `json:"value"`
	} `json:"result"`
	ExceptionDetails *struct {
		Text string `json:"text"`
	} `json:"exceptionDetails"`
}

func (l *Loop) evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	raw, err := l.caller.Call(ctx, "Runtime.evaluate", map[string]interface{}{
		"expression":    expression,
		"returnByValue": true,
	}, defaultCallTimeout)
	if err != nil {
		return nil, err
	}

	var res evaluateResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: malformed evaluate response: %v", channel.ErrProtocol, err)
	}
	if res.ExceptionDetails != nil {
		return nil, fmt.Errorf("remote evaluation failed: %s", res.ExceptionDetails.Text)
	}
	return res.Result.Value, nil
}

func (l *Loop) evaluateSnapshot(ctx context.Context) (PageSnapshot, error) {
	value, err := l.evaluate(ctx, SnapshotExpression())
	if err != nil {
		return PageSnapshot{}, err
	}

	// The snapshot script returns a JSON string value.
	var encoded string
	if err := json.Unmarshal(value, &encoded); err != nil {
		return PageSnapshot{}, fmt.Errorf("%w: malformed snapshot value: %v", channel.ErrProtocol, err)
	}
	var snapshot PageSnapshot
	if err := json.Unmarshal([]byte(encoded), &snapshot); err != nil {
		return PageSnapshot{}, fmt.Errorf("%w: malformed snapshot payload: %v", channel.ErrProtocol, err)
	}
	return snapshot, nil
}

func (l *Loop) evaluateClick(ctx context.Context, indices []int) (int, error) {
	expression, err := ClickExpression(indices)
	if err != nil {
		return 0, err
	}
	value, err := l.evaluate(ctx, expression)
	if err != nil {
		return 0, err
	}

	var clicked int
	if err := json.Unmarshal(value, &clicked); err != nil {
		return 0, fmt.Errorf("%w: malformed click count: %v", channel.ErrProtocol, err)
	}
	return clicked, nil
}
