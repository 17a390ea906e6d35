package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (*bytes.Buffer, *bytes.Buffer, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out, errOut, err
}

func TestCompileCommand_TextOutput(t *testing.T) {
	out, _, err := execute(t, "compile", "testdata/catalog", "testdata/orders_pipeline.yaml", "-d", "sqlite")
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "SELECT")
	assert.Contains(t, text, "GROUP BY")
	assert.Contains(t, text, "-- dialect: sqlite")
	assert.Contains(t, text, "-- total: float64")
	assert.Contains(t, text, "-- orders: int64")
}

func TestCompileCommand_JSONOutput(t *testing.T) {
	out, _, err := execute(t, "compile", "testdata/catalog", "testdata/orders_pipeline.yaml",
		"-d", "postgres", "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	parsed, err := uuid.Parse(resp.Run)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	sql, ok := data["sql"].(string)
	require.True(t, ok)
	assert.Contains(t, sql, "SELECT")
	assert.Equal(t, "postgres", data["dialect"])
}

func TestCompileCommand_UnknownDialect(t *testing.T) {
	out, _, err := execute(t, "compile", "testdata/catalog", "testdata/orders_pipeline.yaml", "-d", "oracle")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "unknown dialect")
	assert.Contains(t, out.String(), "sqlite")
}

func TestCompileCommand_MissingCatalog(t *testing.T) {
	_, _, err := execute(t, "compile", "testdata/nowhere", "testdata/orders_pipeline.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileCommand_BuildFailure(t *testing.T) {
	dir := t.TempDir()
	pipeline := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(pipeline, []byte(`
from: orders
steps:
  - filter: {op: "+", left: {column: customer}, right: {int: 1}}
`), 0o644))

	out, _, err := execute(t, "compile", "testdata/catalog", pipeline)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "E_BUILD")
}

func TestCompileCommand_UnsupportedOperation(t *testing.T) {
	dir := t.TempDir()
	pipeline := filepath.Join(dir, "right_join.yaml")
	require.NoError(t, os.WriteFile(pipeline, []byte(`
from: orders
steps:
  - join:
      kind: right
      table: customers
      on: {op: "=", left: {column: id}, right: {column: cust_id}}
`), 0o644))

	out, _, err := execute(t, "compile", "testdata/catalog", pipeline, "-d", "sqlite")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "E_UNSUPPORTED")
}

func TestCompileCommand_WritesOutputFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "query.sql")
	_, _, err := execute(t, "compile", "testdata/catalog", "testdata/orders_pipeline.yaml",
		"-d", "ansi", "-o", target)
	require.NoError(t, err)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "SELECT"))
	assert.True(t, strings.HasSuffix(string(content), "\n"))
}

func TestExplainCommand_ShowsBeforeAndAfter(t *testing.T) {
	out, _, err := execute(t, "explain", "testdata/catalog", "testdata/orders_pipeline.yaml")
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Plan:")
	assert.Contains(t, text, "Table orders")
	assert.Contains(t, text, "Rewritten")
	assert.Contains(t, text, "Limit count=10 offset=0")
}

func TestExplainCommand_NoRewrite(t *testing.T) {
	out, _, err := execute(t, "explain", "--no-rewrite", "testdata/catalog", "testdata/orders_pipeline.yaml")
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "Rewritten")
}

func TestDialectsCommand(t *testing.T) {
	out, _, err := execute(t, "dialects")
	require.NoError(t, err)
	assert.Equal(t, []string{"ansi", "clickhouse", "postgres", "sqlite"},
		strings.Fields(out.String()))
}

func TestDialectsCommand_JSON(t *testing.T) {
	out, _, err := execute(t, "dialects", "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}
