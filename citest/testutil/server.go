package testutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/pleiades-agents/pleiades/internal/dispatch"
	"github.com/pleiades-agents/pleiades/internal/event"
	"github.com/pleiades-agents/pleiades/internal/instructions"
	"github.com/pleiades-agents/pleiades/internal/metrics"
	"github.com/pleiades-agents/pleiades/internal/server"
	"github.com/pleiades-agents/pleiades/internal/source"
	"github.com/pleiades-agents/pleiades/internal/storage"
	"github.com/pleiades-agents/pleiades/internal/watcher"
)

// TestServer wraps a server instance for testing
type TestServer struct {
	Server     *server.Server
	Dispatcher *dispatch.Dispatcher
	Bus        *event.Bus
	Watcher    *watcher.Watcher
	BaseURL    string
	AgentsDir  string
	TempDir    string
	port       int
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	agents       []AgentFixture
	defaultAgent string
	debounce     time.Duration
}

// WithAgents replaces the default fixture tree.
func WithAgents(agents ...AgentFixture) TestServerOption {
	return func(c *testServerConfig) {
		c.agents = agents
	}
}

// WithDefaultAgent sets the ambiguous-route hint.
func WithDefaultAgent(name string) TestServerOption {
	return func(c *testServerConfig) {
		c.defaultAgent = name
	}
}

// StartTestServer writes the fixture tree to a temp dir and serves it with a
// live watcher.
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{
		agents:   DefaultAgents(),
		debounce: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	tempDir, err := os.MkdirTemp("", "pleiades-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	agentsDir := filepath.Join(tempDir, "agents")
	for _, a := range cfg.agents {
		if err := WriteAgent(agentsDir, a); err != nil {
			os.RemoveAll(tempDir)
			return nil, err
		}
	}

	port, err := findAvailablePort()
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	ctx := context.Background()
	store := storage.NewOS(agentsDir)
	bus := event.NewBus()
	collector := metrics.NewCollector("")
	collector.Attach(bus)

	d := dispatch.New(source.NewDir(store), instructions.NewFileStore(store, ""),
		dispatch.WithBus(bus),
		dispatch.WithLogger(zerolog.Nop()),
		dispatch.WithDefaultAgent(cfg.defaultAgent),
	)
	if _, err := d.Reload(ctx, dispatch.TriggerStartup); err != nil {
		bus.Close()
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("initial load: %w", err)
	}

	w, err := watcher.New(agentsDir, d, watcher.Options{Debounce: cfg.debounce})
	if err != nil {
		bus.Close()
		os.RemoveAll(tempDir)
		return nil, err
	}
	w.Start()

	serverConfig := server.DefaultConfig()
	serverConfig.Port = port
	serverConfig.Version = "citest"
	srv := server.New(serverConfig, d, bus, collector)

	go func() {
		_ = srv.Start()
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	ts := &TestServer{
		Server:     srv,
		Dispatcher: d,
		Bus:        bus,
		Watcher:    w,
		BaseURL:    baseURL,
		AgentsDir:  agentsDir,
		TempDir:    tempDir,
		port:       port,
	}
	if err := waitForServer(baseURL, 10*time.Second); err != nil {
		ts.Stop()
		return nil, fmt.Errorf("server failed to start: %w", err)
	}
	return ts, nil
}

// Stop shuts down the test server and cleans up
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ts.Watcher != nil {
		ts.Watcher.Stop()
	}
	if ts.Server != nil {
		if err := ts.Server.Shutdown(ctx); err != nil {
			return err
		}
	}
	if ts.Bus != nil {
		ts.Bus.Close()
	}
	if ts.TempDir != "" {
		os.RemoveAll(ts.TempDir)
	}
	return nil
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/health")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
