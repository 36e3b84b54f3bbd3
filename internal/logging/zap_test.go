package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_ZapJSON_WritesFieldsAndRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Backend: "zap", Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	ctx := context.Background()
	log.Debug(ctx, "hidden", "k", "v")
	log.With("req_id", "r1").Info(ctx, "shown", "user_id", 7)

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"msg":"shown"`)
	require.Contains(t, out, `"req_id":"r1"`)
	require.Contains(t, out, `"user_id":7`)
}

func TestNew_SlogText_Default(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "debug", Output: &buf})
	require.NoError(t, err)

	log.Debug(context.Background(), "dbg", "a", 1)
	require.True(t, strings.Contains(buf.String(), "level=DEBUG"))
	require.True(t, strings.Contains(buf.String(), "a=1"))
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Options{Backend: "logrus"})
	require.Error(t, err)
}
