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
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("E001", "building CUE value", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, "E001", resp.Error.Code)
	assert.Equal(t, "building CUE value", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"file": "test.cue", "line": "42"}
	err := formatter.Error("E002", "bad field", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("2 machine(s) valid")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "2 machine(s) valid")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("E001", "building CUE value", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "building CUE value")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"file": "test.cue"}
	err := formatter.Error("E001", "building CUE value", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Processing %s", "test.cue")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Processing test.cue")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestOutputFormatter_VerboseLogToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "json",
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   true,
	}

	formatter.VerboseLog("Found %d CUE file(s)", 3)

	assert.Empty(t, out.String())
	assert.Equal(t, "Found 3 CUE file(s)\n", errOut.String())
}

func TestOutputFormatter_IndentedRunID(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Indented(CLIResponse{Status: "ok", RunID: "run-1"}))

	assert.Contains(t, buf.String(), "\n  \"status\": \"ok\"")
	assert.Contains(t, buf.String(), `"run_id": "run-1"`)
	assert.NotContains(t, buf.String(), `"data"`)
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"failure", NewExitError(ExitFailure, "scenario failed"), ExitFailure},
		{"command error", NewExitError(ExitCommandError, "bad path"), ExitCommandError},
		{"wrapped", fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "inner")), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestWrapExitError(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to open database", cause)

	assert.Equal(t, "failed to open database: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestNewLogger_Levels(t *testing.T) {
	buf := &bytes.Buffer{}
	newLogger(buf, false).Debug("hidden")
	assert.Empty(t, buf.String())

	newLogger(buf, true).Debug("shown", "machine", "player")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "machine=player")
}
