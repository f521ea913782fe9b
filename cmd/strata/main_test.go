package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/strata/internal/config/tree"
)

func project(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.toml"), []byte(`name = "svc"

[server]
port = 8080
hosts = ["a", "b"]
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.staging.toml"), []byte(`[server]
hosts = ["c"]
`), 0o644))
	return dir
}

// run executes the command line and returns stdout and the error.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp(&stdout, &stderr)
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"strata"}, args...))
	return stdout.String(), err
}

func TestGet(t *testing.T) {
	dir := project(t)

	out, err := run(t, "--workdir", dir, "get", "server.port")
	require.NoError(t, err)
	assert.Equal(t, "8080\n", out)

	out, err = run(t, "--workdir", dir, "--env", "staging", "--array-merge", "append", "get", "server.hosts")
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b","c"]`, out)

	out, err = run(t, "--workdir", dir, "--set", "server.port:=9090", "get", "server.port")
	require.NoError(t, err)
	assert.Equal(t, "9090\n", out)
}

func TestGet_Errors(t *testing.T) {
	dir := project(t)

	_, err := run(t, "--workdir", dir, "get", "server.missing")
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.ExitCode())

	_, err = run(t, "--workdir", dir, "get")
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 2, exit.ExitCode())

	_, err = run(t, "--workdir", dir, "--array-merge", "zip", "get", "name")
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 2, exit.ExitCode())
}

func TestDump(t *testing.T) {
	dir := project(t)

	out, err := run(t, "--workdir", dir, "dump")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"svc","server":{"port":8080,"hosts":["a","b"]}}`, out)
	assert.Less(t, strings.Index(out, `"port"`), strings.Index(out, `"hosts"`), "key order is kept")

	out, err = run(t, "--workdir", dir, "dump", "--format", "yaml")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "svc", decoded["name"])
	assert.True(t, strings.HasPrefix(out, "name: svc\n"), out)

	out, err = run(t, "--workdir", dir, "dump", "-o", "toml")
	require.NoError(t, err)
	assert.Contains(t, out, "[server]")
	assert.Contains(t, out, "port = 8080")

	out, err = run(t, "--workdir", dir, "dump", "-o", "go")
	require.NoError(t, err)
	assert.Contains(t, out, `"svc"`)

	_, err = run(t, "--workdir", dir, "dump", "-o", "xml")
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
}

func TestQuery(t *testing.T) {
	dir := project(t)

	out, err := run(t, "--workdir", dir, "query", "server.hosts.#")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	_, err = run(t, "--workdir", dir, "query", "nothing.here")
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.ExitCode())
}

func TestOrigin(t *testing.T) {
	dir := project(t)

	out, err := run(t, "--workdir", dir, "--env", "staging", "--set", "name=cli", "origin")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "name\tcli\targuments", lines[0])
	assert.Equal(t, "server.port\t8080\t"+filepath.Join(dir, "config", "config.toml"), lines[1])
	assert.Equal(t, `server.hosts	["c"]	`+filepath.Join(dir, "config", "config.staging.toml"), lines[2])
}

func TestEncode_YAMLKeepsOrder(t *testing.T) {
	m := tree.NewMap()
	m.Set("zeta", int64(1))
	m.Set("alpha", []any{"x", nil})

	out, err := encode(m, "yaml")
	require.NoError(t, err)
	assert.Equal(t, "zeta: 1\nalpha:\n    - x\n    - null\n", string(out))
}

func TestScalarString(t *testing.T) {
	assert.Equal(t, "null", scalarString(nil))
	assert.Equal(t, "text", scalarString("text"))
	assert.Equal(t, "3.5", scalarString(3.5))
	assert.Equal(t, `[1,2]`, scalarString([]any{int64(1), int64(2)}))
}
