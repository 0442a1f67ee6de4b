package registry_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpconverse/mocks/mocktools"
	"github.com/effective-security/mcpconverse/registry"
	"github.com/effective-security/mcpconverse/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTool(ctrl *gomock.Controller, name string) *mocktools.MockTool {
	t := mocktools.NewMockTool(ctrl)
	t.EXPECT().Name().Return(name).AnyTimes()
	t.EXPECT().Description().Return("desc of " + name).AnyTimes()
	t.EXPECT().InputSchema().Return(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"symbol": map[string]any{"type": "string"},
		},
	}).AnyTimes()
	return t
}

func TestDiscover_Once(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	list := []tools.Tool{
		newTool(ctrl, "get_dividends"),
		newTool(ctrl, "get_quote"),
	}
	host := mocktools.NewMockHost(ctrl)
	host.EXPECT().ListTools(gomock.Any()).Return(list, nil).Times(1)

	reg := registry.New(host)
	first, err := reg.Discover(ctx)
	require.NoError(t, err)
	second, err := reg.Discover(ctx)
	require.NoError(t, err)

	require.Len(t, second, 2)
	assert.Same(t, &first[0], &second[0])

	_, err = reg.Declarations(ctx, "get_")
	require.NoError(t, err)
	res := reg.Dispatch(ctx, "missing", nil)
	assert.True(t, res.IsError())
}

func TestDiscover_FailureNotCached(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	host := mocktools.NewMockHost(ctrl)
	host.EXPECT().ListTools(gomock.Any()).Return(nil, errors.New("connection refused")).Times(1)
	host.EXPECT().ListTools(gomock.Any()).Return([]tools.Tool{newTool(ctrl, "get_dividends")}, nil).Times(1)

	reg := registry.New(host)
	_, err := reg.Discover(ctx)
	assert.EqualError(t, err, "failed to discover tools on tool_host: connection refused")

	_, err = reg.Declarations(ctx, "get_dividends")
	require.NoError(t, err)
}

func TestBuildDeclarations(t *testing.T) {
	ctrl := gomock.NewController(t)

	list := []tools.Tool{
		newTool(ctrl, "get_dividends"),
		newTool(ctrl, "get_quote"),
		newTool(ctrl, "get_dividends_history"),
	}

	tcases := []struct {
		name     string
		prefixes []string
		exp      []string
	}{
		{name: "dividends", prefixes: []string{"get_dividends"}, exp: []string{"get_dividends", "get_dividends_history"}},
		{name: "all", prefixes: []string{"get_"}, exp: []string{"get_dividends", "get_quote", "get_dividends_history"}},
		{name: "multiple", prefixes: []string{"get_quote", "get_dividends_h"}, exp: []string{"get_quote", "get_dividends_history"}},
		{name: "case sensitive", prefixes: []string{"GET_"}},
		{name: "none", prefixes: []string{"xyz"}},
		{name: "no prefixes"},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			decls := registry.BuildDeclarations(list, tc.prefixes...)
			var names []string
			for _, d := range decls {
				require.NotNil(t, d.Function)
				assert.Equal(t, "function", d.Type)
				assert.Equal(t, "desc of "+d.Function.Name, d.Function.Description)
				assert.Equal(t, "object", d.Function.Parameters["type"])
				names = append(names, d.Function.Name)
			}
			assert.Equal(t, tc.exp, names)
		})
	}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		host := mocktools.NewMockHost(ctrl)
		// Invoke on the listed tool is not expected
		host.EXPECT().ListTools(gomock.Any()).Return([]tools.Tool{newTool(ctrl, "get_dividends")}, nil)

		res := registry.New(host).Dispatch(ctx, "get_quote", map[string]any{"symbol": "AAPL"})
		assert.True(t, res.IsError())
		assert.Equal(t, "Tool 'get_quote' not found", res.ErrorMessage())
		assert.JSONEq(t, `{"status":"error","error":"Tool 'get_quote' not found"}`, res.JSON())
	})

	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		tool := newTool(ctrl, "get_dividends")
		args := map[string]any{"symbol": "AAPL"}
		payload := map[string]any{"amount": 0.24, "currency": "USD"}
		tool.EXPECT().Invoke(gomock.Any(), args).Return(tools.OK(payload)).Times(1)

		host := mocktools.NewMockHost(ctrl)
		host.EXPECT().ListTools(gomock.Any()).Return([]tools.Tool{tool}, nil)

		res := registry.New(host).Dispatch(ctx, "get_dividends", args)
		require.False(t, res.IsError())
		assert.Equal(t, payload, res.Payload())
		assert.JSONEq(t, `{"amount":0.24,"currency":"USD"}`, res.JSON())
	})

	t.Run("case insensitive", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		tool := newTool(ctrl, "get_dividends")
		tool.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(tools.OK("ok"))

		host := mocktools.NewMockHost(ctrl)
		host.EXPECT().ListTools(gomock.Any()).Return([]tools.Tool{tool}, nil)

		res := registry.New(host).Dispatch(ctx, "GET_Dividends", nil)
		assert.False(t, res.IsError())
	})

	t.Run("tool error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		tool := newTool(ctrl, "get_dividends")
		tool.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(tools.Fail("unknown symbol: XYZ"))

		host := mocktools.NewMockHost(ctrl)
		host.EXPECT().ListTools(gomock.Any()).Return([]tools.Tool{tool}, nil)

		res := registry.New(host).Dispatch(ctx, "get_dividends", map[string]any{"symbol": "XYZ"})
		assert.True(t, res.IsError())
		assert.Equal(t, "unknown symbol: XYZ", res.ErrorMessage())
	})

	t.Run("tool panic", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		tool := newTool(ctrl, "get_dividends")
		tool.EXPECT().Invoke(gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, map[string]any) tools.Result {
				panic("boom")
			})

		host := mocktools.NewMockHost(ctrl)
		host.EXPECT().ListTools(gomock.Any()).Return([]tools.Tool{tool}, nil)

		res := registry.New(host).Dispatch(ctx, "get_dividends", nil)
		assert.True(t, res.IsError())
		assert.Equal(t, "boom", res.ErrorMessage())
	})

	t.Run("discovery failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		host := mocktools.NewMockHost(ctrl)
		host.EXPECT().ListTools(gomock.Any()).Return(nil, errors.New("connection refused"))

		res := registry.New(host).Dispatch(ctx, "get_dividends", nil)
		assert.True(t, res.IsError())
		assert.Equal(t, "failed to discover tools on tool_host: connection refused", res.ErrorMessage())
	})
}

type namedHost struct {
	tools.Host
}

func (namedHost) Name() string { return "dividends" }

func TestNew_HostName(t *testing.T) {
	ctrl := gomock.NewController(t)
	host := mocktools.NewMockHost(ctrl)
	host.EXPECT().ListTools(gomock.Any()).Return(nil, errors.New("refused"))

	_, err := registry.New(namedHost{Host: host}).Discover(context.Background())
	assert.EqualError(t, err, "failed to discover tools on dividends: refused")
}
