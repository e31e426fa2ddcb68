package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HeartbeatType is the Type recorded for SSE comment lines.
const HeartbeatType = "heartbeat"

// SSEEvent is one decoded bus event from /event.
type SSEEvent struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// Decode unmarshals the event properties into v.
func (evt *SSEEvent) Decode(v any) error {
	return json.Unmarshal(evt.Properties, v)
}

// SSEClient records every event of one /event stream. WaitForEvent consumes
// the log in order, so each call sees only events after the last match.
type SSEClient struct {
	BaseURL    string
	HTTPClient *http.Client

	mu     sync.Mutex
	log    []SSEEvent
	cursor int
	err    error

	notify chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
}

// NewSSEClient creates a new SSE test client
func NewSSEClient(baseURL string) *SSEClient {
	return &SSEClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Connect opens the stream at path (e.g. "/event?type=route.selected") and
// starts recording in the background.
func (c *SSEClient) Connect(ctx context.Context, path string) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("unexpected content type: %s", ct)
	}

	go func() {
		defer resp.Body.Close()
		c.finish(c.record(resp))
	}()
	return nil
}

// record parses the stream until it ends. Only "message" events carry bus
// payloads; comment lines are heartbeats.
func (c *SSEClient) record(resp *http.Response) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var name string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name == "message" && data.Len() > 0 {
				var evt SSEEvent
				if err := json.Unmarshal([]byte(data.String()), &evt); err == nil {
					c.append(evt)
				}
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			c.append(SSEEvent{Type: HeartbeatType})
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return scanner.Err()
}

func (c *SSEClient) append(evt SSEEvent) {
	c.mu.Lock()
	c.log = append(c.log, evt)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *SSEClient) finish(err error) {
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	close(c.done)
}

// next returns the first unconsumed event of eventType and advances past it.
func (c *SSEClient) next(eventType string) (*SSEEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := c.cursor; i < len(c.log); i++ {
		if c.log[i].Type == eventType {
			c.cursor = i + 1
			evt := c.log[i]
			return &evt, true
		}
	}
	return nil, false
}

// WaitForEvent blocks until an event of eventType arrives after the previous
// match, the stream ends, or timeout elapses.
func (c *SSEClient) WaitForEvent(eventType string, timeout time.Duration) (*SSEEvent, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if evt, ok := c.next(eventType); ok {
			return evt, nil
		}
		select {
		case <-c.notify:
		case <-c.done:
			if evt, ok := c.next(eventType); ok {
				return evt, nil
			}
			c.mu.Lock()
			err := c.err
			c.mu.Unlock()
			if err == nil {
				err = errors.New("stream closed")
			}
			return nil, fmt.Errorf("waiting for %s: %w", eventType, err)
		case <-timer.C:
			return nil, fmt.Errorf("timeout waiting for event: %s", eventType)
		}
	}
}

// Received returns a copy of every event recorded so far.
func (c *SSEClient) Received() []SSEEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SSEEvent, len(c.log))
	copy(out, c.log)
	return out
}

// HasEventType reports whether any recorded event has eventType.
func (c *SSEClient) HasEventType(eventType string) bool {
	for _, evt := range c.Received() {
		if evt.Type == eventType {
			return true
		}
	}
	return false
}

// Close ends the stream.
func (c *SSEClient) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}
