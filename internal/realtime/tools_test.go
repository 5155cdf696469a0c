package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/voicectl/internal/common/logger"
)

var countryParams = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"country": map[string]any{"type": "string", "description": "Name of country"},
	},
	"required": []any{"country"},
}

func newTestTools() *ToolContext {
	tools := NewToolContext(logger.NewNop())
	tools.RegisterFunction("get_avg_temp", "Returns average temperature of a country", countryParams,
		func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"status": "success", "country": args["country"], "result": "24 degree C"}, nil
		})
	tools.RegisterClientFunction("show_map", "Shows a map on the client", countryParams)
	return tools
}

func TestToolContext_ExecuteLocal(t *testing.T) {
	tools := newTestTools()

	res, err := tools.ExecuteTool(context.Background(), "get_avg_temp", `{"country":"Peru"}`)
	require.NoError(t, err)
	local, ok := res.(LocalToolCallExecuted)
	require.True(t, ok)
	assert.JSONEq(t, `{"status":"success","country":"Peru","result":"24 degree C"}`, local.JSONOutput)
}

func TestToolContext_PassThrough(t *testing.T) {
	tools := newTestTools()

	res, err := tools.ExecuteTool(context.Background(), "show_map", `{"country":"Chile"}`)
	require.NoError(t, err)
	pass, ok := res.(ShouldPassThroughToolCall)
	require.True(t, ok)
	assert.Equal(t, "Chile", pass.Args["country"])
}

func TestToolContext_UnknownAndBadArgs(t *testing.T) {
	tools := newTestTools()

	res, err := tools.ExecuteTool(context.Background(), "nope", `{}`)
	assert.NoError(t, err)
	assert.Nil(t, res)

	_, err = tools.ExecuteTool(context.Background(), "get_avg_temp", `[1,2]`)
	assert.Error(t, err)
	_, err = tools.ExecuteTool(context.Background(), "get_avg_temp", `null`)
	assert.Error(t, err)
}

func TestToolContext_FunctionError(t *testing.T) {
	tools := NewToolContext(logger.NewNop())
	tools.RegisterFunction("fail", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("backend down")
	})

	_, err := tools.ExecuteTool(context.Background(), "fail", `{}`)
	assert.ErrorContains(t, err, "backend down")
}

func TestToolContext_ModelDescriptionOrder(t *testing.T) {
	tools := newTestTools()
	tools.RegisterFunction("get_avg_temp", "replaced", countryParams,
		func(context.Context, map[string]any) (any, error) { return nil, nil })

	desc := tools.ModelDescription()
	require.Len(t, desc, 2)
	assert.Equal(t, "get_avg_temp", desc[0]["name"])
	assert.Equal(t, "replaced", desc[0]["description"])
	assert.Equal(t, "show_map", desc[1]["name"])
	assert.Equal(t, "function", desc[1]["type"])
}
