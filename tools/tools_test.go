package tools_test

import (
	"context"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpconverse/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult(t *testing.T) {
	t.Parallel()

	payload := map[string]any{"amount": 0.24, "currency": "USD"}
	ok := tools.OK(payload)
	assert.False(t, ok.IsError())
	assert.Equal(t, payload, ok.Payload())
	assert.Equal(t, payload, ok.Value())
	assert.Empty(t, ok.ErrorMessage())
	assert.JSONEq(t, `{"amount":0.24,"currency":"USD"}`, ok.JSON())

	failed := tools.Errorf("Tool '%s' not found", "get_quote")
	assert.True(t, failed.IsError())
	assert.Nil(t, failed.Payload())
	assert.Equal(t, "Tool 'get_quote' not found", failed.ErrorMessage())
	assert.Equal(t, map[string]any{"status": "error", "error": "Tool 'get_quote' not found"}, failed.Value())
	assert.JSONEq(t, `{"status":"error","error":"Tool 'get_quote' not found"}`, failed.String())

	bad := tools.OK(math.Inf(1))
	assert.Contains(t, bad.JSON(), `"status":"error"`)
}

type quoteArgs struct {
	Symbol string `json:"symbol" jsonschema:"description=Ticker symbol" validate:"required"`
}

type quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestFunc(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	calls := 0
	tool, err := tools.NewFunc("get_quote", "Returns the latest quote",
		func(_ context.Context, in *quoteArgs) (*quote, error) {
			calls++
			if in.Symbol == "ERR" {
				return nil, errors.New("quote service unavailable")
			}
			return &quote{Symbol: in.Symbol, Price: 227.5}, nil
		})
	require.NoError(t, err)

	assert.Equal(t, "get_quote", tool.Name())
	assert.Equal(t, "Returns the latest quote", tool.Description())
	assert.Equal(t, "object", tool.InputSchema()["type"])

	res := tool.Invoke(ctx, map[string]any{"symbol": "AAPL"})
	require.False(t, res.IsError(), res.ErrorMessage())
	assert.Equal(t, &quote{Symbol: "AAPL", Price: 227.5}, res.Payload())

	res = tool.Invoke(ctx, nil)
	assert.True(t, res.IsError())
	assert.Equal(t, "symbol is required", res.ErrorMessage())

	res = tool.Invoke(ctx, map[string]any{"symbol": ""})
	assert.True(t, res.IsError())
	assert.Equal(t, "symbol is required", res.ErrorMessage())
	assert.Equal(t, 1, calls, "invalid arguments must not reach the function")

	res = tool.Invoke(ctx, map[string]any{"symbol": "ERR"})
	assert.True(t, res.IsError())
	assert.Equal(t, "quote service unavailable", res.ErrorMessage())

	res = tool.Invoke(ctx, map[string]any{"symbol": 42})
	assert.True(t, res.IsError())
	assert.Contains(t, res.ErrorMessage(), "failed to unmarshal arguments")

	out, err := tool.Run(ctx, &quoteArgs{Symbol: "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, "MSFT", out.Symbol)
}

func TestNewFunc_InvalidInput(t *testing.T) {
	t.Parallel()
	_, err := tools.NewFunc("bad", "bad", func(_ context.Context, in *string) (*string, error) {
		return in, nil
	})
	assert.EqualError(t, err, "failed to create schema for bad: schema: expected struct, got string")
}

type rangeArgs struct {
	Symbol string `json:"symbol" validate:"required"`
	Limit  int    `json:"limit,omitempty" validate:"max=10"`
	Note   string `validate:"required"`
}

func TestDecodeArgs(t *testing.T) {
	t.Parallel()

	in, err := tools.DecodeArgs[rangeArgs](map[string]any{"symbol": "KO", "limit": 4, "Note": "n"})
	require.NoError(t, err)
	assert.Equal(t, &rangeArgs{Symbol: "KO", Limit: 4, Note: "n"}, in)

	_, err = tools.DecodeArgs[rangeArgs](map[string]any{"limit": 20})
	assert.EqualError(t, err, "symbol is required; limit failed on the 'max' rule; Note is required")

	_, err = tools.DecodeArgs[rangeArgs](nil)
	assert.EqualError(t, err, "symbol is required; Note is required")

	assert.NoError(t, tools.Validate(&quoteArgs{Symbol: "AAPL"}))
}
