package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]int{"states": 3}))

	var resp envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"states": float64(3)}, resp.Data)
	assert.Contains(t, buf.String(), "\n  \"data\"")
}

func TestOutputFormatter_JSONOmitsNilData(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "json", Writer: buf}).Success(nil))
	assert.JSONEq(t, `{"status":"ok"}`, buf.String())
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("3 states"))
	require.NoError(t, formatter.Success(4))
	assert.Equal(t, "3 states\n4\n", buf.String())
}

func TestExitCodes(t *testing.T) {
	wrapped := WrapExitError(ExitCommandError, "startup failed", errors.New("x"))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "startup failed: x", wrapped.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("serve: %w", wrapped)))

	missing := NewExitError(ExitFailure, "state 9 not found")
	assert.Equal(t, ExitFailure, GetExitCode(missing))
	assert.Equal(t, "state 9 not found", missing.Error())
	assert.NoError(t, missing.Unwrap())

	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
