package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/strata/internal/config/tree"
)

func TestParseYAML(t *testing.T) {
	config, err := ParseYAML("config.yaml", []byte(`# document note
server:
  port: 8080
  host: localhost
database: # database note
  # @merge-ignore-target-key storage
  dialect: mysql
  options:
    ssl: true
users:
  - name: alice
  - name: bob
ratio: 0.5
empty:
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"server", "database", "users", "ratio", "empty"}, config.Keys())
	assert.Contains(t, config.Annotation(), "# document note")

	port, _ := tree.Lookup(config, "server.port")
	assert.Equal(t, int64(8080), port)
	ratio, _ := config.Get("ratio")
	assert.Equal(t, 0.5, ratio)
	empty, ok := config.Get("empty")
	assert.True(t, ok)
	assert.Nil(t, empty)

	db, _ := config.Get("database")
	annotation := db.(*tree.Map).Annotation()
	assert.Contains(t, annotation, "# database note")
	assert.Contains(t, annotation, "@merge-ignore-target-key storage")

	server, _ := config.Get("server")
	assert.Equal(t, []string{"port", "host"}, server.(*tree.Map).Keys())

	bob, _ := tree.Lookup(config, "users.1.name")
	assert.Equal(t, "bob", bob)
}

func TestParseYAML_MergeKeys(t *testing.T) {
	config, err := ParseYAML("anchors.yaml", []byte(`
defaults: &defaults
  adapter: postgres
  host: localhost
development:
  <<: *defaults
  host: dev.local
`))
	require.NoError(t, err)

	dev, _ := config.Get("development")
	assert.True(t, tree.Equal(mapOf("adapter", "postgres", "host", "dev.local"), dev), "development = %v", dev)
}

func TestParseYAML_Errors(t *testing.T) {
	_, err := ParseYAML("list.yaml", []byte("- a\n- b\n"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "list.yaml", perr.Path)

	_, err = ParseYAML("bad.yaml", []byte("a: [1, 2\nb: 3\n"))
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bad.yaml", perr.Path)
}

func TestParseYAML_Empty(t *testing.T) {
	config, err := ParseYAML("empty.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, config.Len())
}

func TestYAMLLoader_Load(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/config.yml", "name: strata\n")

	config, err := NewYAMLLoaderWithFS(memfs, "/config.yml").Load()
	require.NoError(t, err)
	name, _ := config.Get("name")
	assert.Equal(t, "strata", name)

	missing, err := NewYAMLLoaderWithFS(memfs, "/missing.yml").Load()
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func mapOf(kv ...any) *tree.Map {
	m := tree.NewMapWithCapacity(len(kv) / 2)
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(kv[i].(string), kv[i+1])
	}
	return m
}
