package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/automobile-core/server/internal/tools"
)

func TestNew_ExposesRegisteredTools(t *testing.T) {
	reg := tools.New()
	reg.Register("echo", []tools.ParamSpec{{Name: "text", Type: tools.TypeString, Required: true}},
		func(ctx context.Context, params map[string]any) (any, error) {
			return params["text"], nil
		})

	s := New("test-app", "0.0.0", reg, map[string]ToolMeta{
		"echo": {Description: "echoes text back", ParamDescriptions: map[string]string{"text": "text to echo"}},
	})
	require.NotNil(t, s.server)
	require.False(t, s.IsRunning())
}

func TestParamOption_FallsBackToStringForObjectAndArray(t *testing.T) {
	require.NotPanics(t, func() {
		paramOption(tools.ParamSpec{Name: "payload", Type: tools.TypeObject}, "desc")
		paramOption(tools.ParamSpec{Name: "items", Type: tools.TypeArray}, "desc")
	})
}
