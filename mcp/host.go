// Package mcp connects to MCP tool hosts over streamable HTTP
// and serves tools.Tool implementations as an MCP server.
package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpconverse/tools"
	"github.com/effective-security/xlog"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpconverse", "mcp")

// ErrConnection marks failures to reach the tool host.
var ErrConnection = errors.New("tool host connection failed")

// Client identity reported to tool hosts.
const (
	ClientName    = "mcpconverse"
	ClientVersion = "v1.0.0"
)

// DefaultTimeout is applied to HTTP requests when HostConfig.Timeout is not set.
const DefaultTimeout = 30 * time.Second

// HostConfig describes a remote tool host.
type HostConfig struct {
	// Name is used in logs and metrics.
	Name string
	// Endpoint is the streamable HTTP URL, e.g. http://localhost:8000/mcp
	Endpoint string
	// Timeout for each HTTP request.
	Timeout time.Duration
}

// Option configures the Host.
type Option func(*Host)

// WithTransport overrides the streamable HTTP transport.
func WithTransport(t mcpsdk.Transport) Option {
	return func(h *Host) {
		h.transport = t
	}
}

// Host is a tools.Host backed by an MCP client session.
type Host struct {
	cfg       HostConfig
	transport mcpsdk.Transport

	lock    sync.Mutex
	session *mcpsdk.ClientSession
}

var _ tools.Host = (*Host)(nil)

// NewHost returns a Host for the config,
// the connection is established on first use.
func NewHost(cfg HostConfig, opts ...Option) *Host {
	h := &Host{cfg: cfg}
	for _, opt := range opts {
		opt(h)
	}
	if h.transport == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		h.transport = &mcpsdk.StreamableClientTransport{
			Endpoint:   cfg.Endpoint,
			HTTPClient: &http.Client{Timeout: timeout},
		}
	}
	return h
}

// Name returns the host name.
func (h *Host) Name() string {
	return h.cfg.Name
}

func (h *Host) connect(ctx context.Context) (*mcpsdk.ClientSession, error) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.session != nil {
		return h.session, nil
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    ClientName,
		Version: ClientVersion,
	}, nil)

	session, err := client.Connect(ctx, h.transport, nil)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to connect to %s", h.endpoint()), ErrConnection)
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "connected",
		"host", h.cfg.Name,
		"endpoint", h.endpoint(),
	)
	h.session = session
	return session, nil
}

func (h *Host) endpoint() string {
	if h.cfg.Endpoint == "" {
		return h.cfg.Name
	}
	return h.cfg.Endpoint
}

// ListTools returns all tools advertised by the host.
func (h *Host) ListTools(ctx context.Context) ([]tools.Tool, error) {
	session, err := h.connect(ctx)
	if err != nil {
		return nil, err
	}

	var list []tools.Tool
	for t, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "failed to list tools on %s", h.endpoint()), ErrConnection)
		}
		list = append(list, newRemoteTool(session, t))
	}
	return list, nil
}

// Close closes the session, if any.
func (h *Host) Close() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.session == nil {
		return nil
	}
	err := h.session.Close()
	h.session = nil
	if err != nil {
		return errors.Wrap(err, "failed to close session")
	}
	return nil
}

type remoteTool struct {
	session *mcpsdk.ClientSession
	tool    *mcpsdk.Tool
	schema  map[string]any
}

func newRemoteTool(session *mcpsdk.ClientSession, t *mcpsdk.Tool) *remoteTool {
	return &remoteTool{
		session: session,
		tool:    t,
		schema:  schemaMap(t.InputSchema),
	}
}

// schemaMap converts the advertised input schema into a generic map.
func schemaMap(v any) map[string]any {
	switch s := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return s
	}
	js, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err = json.Unmarshal(js, &m); err != nil {
		return nil
	}
	return m
}

func (t *remoteTool) Name() string {
	return t.tool.Name
}

func (t *remoteTool) Description() string {
	return t.tool.Description
}

func (t *remoteTool) InputSchema() map[string]any {
	return t.schema
}

func (t *remoteTool) Invoke(ctx context.Context, args map[string]any) tools.Result {
	res, err := t.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.tool.Name,
		Arguments: args,
	})
	if err != nil {
		return tools.Fail(errors.Wrapf(err, "failed to call %s", t.tool.Name).Error())
	}
	return ToResult(res)
}

// ToResult converts an MCP call result into tools.Result.
func ToResult(res *mcpsdk.CallToolResult) tools.Result {
	text, hasText := firstText(res.Content)
	if res.IsError {
		if !hasText {
			text = "tool call failed"
		}
		return tools.Fail(text)
	}
	if res.StructuredContent != nil {
		return tools.OK(res.StructuredContent)
	}
	if !hasText {
		return tools.OK(nil)
	}
	var payload any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return tools.OK(text)
	}
	return tools.OK(payload)
}

func firstText(content []mcpsdk.Content) (string, bool) {
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			return tc.Text, true
		}
	}
	return "", false
}
