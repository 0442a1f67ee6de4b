// Package registry provides the owned tool cache over a tools.Host:
// discovery once, declaration projection, and fail-soft dispatch.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpconverse/pkg/llms"
	"github.com/effective-security/mcpconverse/pkg/metricskey"
	"github.com/effective-security/mcpconverse/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpconverse", "registry")

// DefaultHostName is used in metrics when the host does not report a name.
const DefaultHostName = "tool_host"

// ErrToolNotFound is returned by Find when no tool matches the name.
var ErrToolNotFound = errors.New("tool not found")

// Registry caches the tool list of a host for the lifetime of the process.
type Registry struct {
	host     tools.Host
	hostName string

	lock  sync.Mutex
	tools []tools.Tool
	found bool
}

// New returns a Registry over the host.
func New(host tools.Host) *Registry {
	name := DefaultHostName
	if n, ok := host.(interface{ Name() string }); ok && n.Name() != "" {
		name = n.Name()
	}
	return &Registry{
		host:     host,
		hostName: name,
	}
}

// Discover returns the full tool list of the host.
// The first successful result is cached, and later calls return it
// without contacting the host. Failures are not cached.
func (r *Registry) Discover(ctx context.Context) ([]tools.Tool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.found {
		return r.tools, nil
	}

	started := time.Now()
	list, err := r.host.ListTools(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to discover tools on %s", r.hostName)
	}
	metricskey.PerfToolDiscovery.MeasureSince(started, r.hostName)
	metricskey.StatsToolsDiscovered.IncrCounter(float64(len(list)), r.hostName)

	r.tools = list
	r.found = true

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "discovered",
		"host", r.hostName,
		"tools", len(list),
	)
	return r.tools, nil
}

// Declarations discovers the tools and returns declarations
// of those matching any of the prefixes.
func (r *Registry) Declarations(ctx context.Context, prefixes ...string) ([]llms.Tool, error) {
	list, err := r.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return BuildDeclarations(list, prefixes...), nil
}

// BuildDeclarations projects the descriptors whose name starts with
// any of the prefixes into model tool declarations, in source order.
func BuildDeclarations(descriptors []tools.Tool, prefixes ...string) []llms.Tool {
	var res []llms.Tool
	for _, t := range descriptors {
		if !hasAnyPrefix(t.Name(), prefixes) {
			continue
		}
		res = append(res, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.InputSchema(),
			},
		})
	}
	return res
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Find returns the tool with the name, compared case-insensitively.
func (r *Registry) Find(ctx context.Context, name string) (tools.Tool, error) {
	list, err := r.Discover(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range list {
		if strings.EqualFold(t.Name(), name) {
			return t, nil
		}
	}
	return nil, errors.Mark(errors.Newf("Tool '%s' not found", name), ErrToolNotFound)
}

// Dispatch invokes the named tool with the arguments.
// It never fails: a missing tool, a discovery failure, or a failing
// or panicking tool are reported as an error Result.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) tools.Result {
	tool, err := r.Find(ctx, name)
	if errors.Is(err, ErrToolNotFound) {
		logger.ContextKV(ctx, xlog.DEBUG, "status", "not_found", "tool", name)
		metricskey.StatsToolCallsNotFound.IncrCounter(1, name)
		return tools.Errorf("Tool '%s' not found", name)
	}
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "tool", name, "err", err.Error())
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		return tools.Fail(err.Error())
	}

	started := time.Now()
	res := invoke(ctx, tool, args)
	metricskey.PerfToolCall.MeasureSince(started, tool.Name())

	if res.IsError() {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "failed",
			"tool", tool.Name(),
			"err", res.ErrorMessage(),
		)
		metricskey.StatsToolCallsFailed.IncrCounter(1, tool.Name())
	} else {
		logger.ContextKV(ctx, xlog.DEBUG, "status", "succeeded", "tool", tool.Name())
		metricskey.StatsToolCallsSucceeded.IncrCounter(1, tool.Name())
	}
	return res
}

func invoke(ctx context.Context, tool tools.Tool, args map[string]any) (res tools.Result) {
	defer func() {
		if v := recover(); v != nil {
			res = tools.Fail(fmt.Sprintf("%v", v))
		}
	}()
	return tool.Invoke(ctx, args)
}
