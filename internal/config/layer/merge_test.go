package layer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/strata/internal/config/tree"
)

func mapOf(kv ...any) *tree.Map {
	m := tree.NewMapWithCapacity(len(kv) / 2)
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(kv[i].(string), kv[i+1])
	}
	return m
}

func mergeMaps(t *testing.T, m *Merger, target, source *tree.Map) *tree.Map {
	t.Helper()
	out, ok := m.Merge(target, source).(*tree.Map)
	require.True(t, ok, "merging two mappings must yield a mapping")
	return out
}

func TestMerge_Scalars(t *testing.T) {
	m := NewMerger(ArrayOverride)

	tests := []struct {
		name           string
		target, source tree.Node
		want           tree.Node
	}{
		{"scalar replaces scalar", 1, 2, 2},
		{"scalar replaces mapping", mapOf("a", 1), "x", "x"},
		{"mapping replaces scalar", "x", mapOf("a", 1), mapOf("a", 1)},
		{"sequence replaces mapping", mapOf("a", 1), []any{1}, []any{1}},
		{"null replaces value", "x", nil, nil},
		{"value replaces null", nil, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Merge(tt.target, tt.source)
			assert.True(t, tree.Equal(tt.want, got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestMerge_NestedMappings(t *testing.T) {
	m := NewMerger(ArrayOverride)
	target := mapOf("database", mapOf("host", "localhost", "port", 3306, "user", "root"))
	source := mapOf("database", mapOf("host", "db.prod", "pool", 10))

	got := mergeMaps(t, m, target, source)

	db, _ := got.Get("database")
	assert.Equal(t, []string{"host", "port", "user", "pool"}, db.(*tree.Map).Keys())
	assert.True(t, tree.Equal(mapOf("host", "db.prod", "port", 3306, "user", "root", "pool", 10), db))
}

func TestMerge_SelfIsIdempotent(t *testing.T) {
	for _, strategy := range []ArrayStrategy{ArrayOverride, ArrayMergeInOrder} {
		t.Run(strategy.String(), func(t *testing.T) {
			x := mapOf(
				"server", mapOf("port", 3000, "tags", []any{"a", "b"}),
				"users", []any{mapOf("name", "bob")},
			)
			got := NewMerger(strategy).Merge(x, x)
			assert.True(t, tree.Equal(x, got), "merge(x, x) = %v", got)
		})
	}
}

func TestMerge_Arrays(t *testing.T) {
	target := func() *tree.Map { return mapOf("a", []any{1, 2, 3}) }
	source := func() *tree.Map { return mapOf("a", []any{9, 8}) }

	tests := []struct {
		strategy ArrayStrategy
		want     []any
	}{
		{ArrayOverride, []any{9, 8}},
		{ArrayMergeInOrder, []any{9, 8, 3}},
		{ArrayAppend, []any{1, 2, 3, 9, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			got := mergeMaps(t, NewMerger(tt.strategy), target(), source())
			a, _ := got.Get("a")
			if diff := cmp.Diff(tt.want, a); diff != "" {
				t.Errorf("a mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMerge_MergeInOrderMergesElements(t *testing.T) {
	target := mapOf("users", []any{
		mapOf("name", "alice", "password", "123"),
		mapOf("name", "peter", "password", "456"),
	})
	source := mapOf("users", []any{
		mapOf("name", "bob", "password", "789"),
	})

	got := mergeMaps(t, NewMerger(ArrayMergeInOrder), target, source)

	want := []any{
		mapOf("name", "bob", "password", "789"),
		mapOf("name", "peter", "password", "456"),
	}
	users, _ := got.Get("users")
	assert.True(t, tree.Equal(want, users), "users = %v", users)
}

func TestMerge_AppendNested(t *testing.T) {
	target := mapOf("kafka", mapOf("brokers", []any{"kafka1:9092", "kafka2:9092"}))
	source := mapOf("kafka", mapOf("brokers", []any{"kafka3:9092", "kafka4:9092"}))

	got := mergeMaps(t, NewMerger(ArrayAppend), target, source)

	brokers, _ := tree.Lookup(got, "kafka.brokers")
	assert.Equal(t, []any{"kafka1:9092", "kafka2:9092", "kafka3:9092", "kafka4:9092"}, brokers)
}

func TestMerge_UnsafeKeysAreSkipped(t *testing.T) {
	m := NewMerger(ArrayOverride)
	target := mapOf("a", 1)
	source := mapOf(
		"__proto__", mapOf("polluted", true),
		"constructor", "x",
		"nested", mapOf("constructor", 1, "ok", 2, "prototype", 3),
		"b", 2,
	)

	got := mergeMaps(t, m, target, source)

	assert.Equal(t, []string{"a", "nested", "b"}, got.Keys())
	nested, _ := got.Get("nested")
	assert.Equal(t, []string{"ok", "prototype"}, nested.(*tree.Map).Keys())

	for _, key := range []string{"__proto__", "constructor"} {
		assert.True(t, IsUnsafeKey(key), key)
	}
	assert.False(t, IsUnsafeKey("proto"))
	assert.False(t, IsUnsafeKey("prototype"))
}

// unsafeKeysIn returns every unsafe key found anywhere in n, as dotted paths.
func unsafeKeysIn(n tree.Node, path tree.Path) []string {
	var found []string
	switch v := n.(type) {
	case *tree.Map:
		v.Range(func(key string, val tree.Node) bool {
			if IsUnsafeKey(key) {
				found = append(found, path.Child(key).String())
			}
			found = append(found, unsafeKeysIn(val, path.Child(key))...)
			return true
		})
	case []any:
		for i, item := range v {
			found = append(found, unsafeKeysIn(item, path.Index(i))...)
		}
	}
	return found
}

func TestMerge_UnsafeKeysAtEveryDepth(t *testing.T) {
	polluted := func() *tree.Map {
		return mapOf(
			"__proto__", "polluted",
			"ok", 1,
			"deeper", mapOf("constructor", mapOf("x", 1), "ok", 2),
			"list", []any{mapOf("__proto__", 1, "ok", 3), []any{mapOf("constructor", 2)}},
		)
	}

	tests := []struct {
		name   string
		target *tree.Map
		source *tree.Map
	}{
		{"key missing from target", mapOf("other", 1), mapOf("db", polluted())},
		{"shape mismatch", mapOf("db", "scalar"), mapOf("db", polluted())},
		{"sequence replaced by mapping", mapOf("db", []any{1}), mapOf("db", polluted())},
		{"sequence elements", mapOf("db", []any{}), mapOf("db", []any{polluted(), polluted()})},
		{"polluted target", mapOf("db", polluted()), mapOf("db", mapOf("ok", 9))},
	}

	for _, strategy := range []ArrayStrategy{ArrayOverride, ArrayMergeInOrder, ArrayAppend} {
		for _, tt := range tests {
			t.Run(strategy.String()+"/"+tt.name, func(t *testing.T) {
				got := mergeMaps(t, NewMerger(strategy), tt.target, tt.source)
				assert.Empty(t, unsafeKeysIn(got, nil))
			})
		}
	}
}

func TestMerge_SequenceTailsAreGated(t *testing.T) {
	target := mapOf("users", []any{mapOf("name", "a"), mapOf("name", "b", "constructor", "t")})
	source := mapOf("users", []any{mapOf("name", "c"), mapOf("name", "d"), mapOf("name", "e", "__proto__", "s")})

	for _, strategy := range []ArrayStrategy{ArrayOverride, ArrayMergeInOrder, ArrayAppend} {
		t.Run(strategy.String(), func(t *testing.T) {
			got := mergeMaps(t, NewMerger(strategy), target, source)
			assert.Empty(t, unsafeKeysIn(got, nil))
			users, _ := got.Get("users")
			for _, u := range users.([]any) {
				assert.Equal(t, []string{"name"}, u.(*tree.Map).Keys())
			}
		})
	}
}

func TestFold_UnsafeKeysInFirstLayer(t *testing.T) {
	first := mapOf("db", mapOf("__proto__", "polluted", "ok", 1))
	second := mapOf("brokers", []any{mapOf("constructor", "x", "ok", 2)})

	got := Fold(NewMerger(ArrayAppend), first, second)

	db, _ := got.Get("db")
	assert.Equal(t, []string{"ok"}, db.(*tree.Map).Keys())
	assert.Empty(t, unsafeKeysIn(got, nil))
}

func TestMerge_KeyOrder(t *testing.T) {
	got := mergeMaps(t, NewMerger(ArrayOverride), mapOf("x", 1, "y", 2), mapOf("z", 3, "x", 4))

	assert.Equal(t, []string{"x", "y", "z"}, got.Keys())
	x, _ := got.Get("x")
	assert.Equal(t, 4, x)
}

func TestMerge_IgnoreTargetKeyDirective(t *testing.T) {
	source := mapOf("c", 4)
	source.SetAnnotation("@merge-ignore-target-key a, b")

	got := mergeMaps(t, NewMerger(ArrayOverride), mapOf("a", 1, "b", 2, "c", 3), source)

	assert.True(t, tree.Equal(mapOf("c", 4), got), "got %v", got)
}

func TestMerge_IgnoredKeyResuppliedBySource(t *testing.T) {
	source := mapOf("storage", mapOf("type", "s3"))
	source.SetAnnotation("@merge-ignore-target-key storage")
	target := mapOf("storage", mapOf("type", "disk", "path", "/tmp"), "logging", true)

	got := mergeMaps(t, NewMerger(ArrayOverride), target, source)

	// The ignored key comes back from the source alone and moves to the end.
	assert.Equal(t, []string{"logging", "storage"}, got.Keys())
	storage, _ := got.Get("storage")
	assert.True(t, tree.Equal(mapOf("type", "s3"), storage))
}

func TestMerge_NestedDirective(t *testing.T) {
	sequelize := mapOf("dialect", "mysql")
	sequelize.SetAnnotation("# comment above\n# @merge-ignore-target-key storage\n")
	target := mapOf("database", mapOf("sequelize", mapOf("dialect", "sqlite", "storage", "db.sqlite")))
	source := mapOf("database", mapOf("sequelize", sequelize))

	got := mergeMaps(t, NewMerger(ArrayOverride), target, source)

	seq, _ := tree.Lookup(got, "database.sequelize")
	assert.True(t, tree.Equal(mapOf("dialect", "mysql"), seq), "sequelize = %v", seq)
}

func TestMerge_DirectiveForMissingKeyIsNoop(t *testing.T) {
	source := mapOf("b", 2)
	source.SetAnnotation("@merge-ignore-target-key nope")

	got := mergeMaps(t, NewMerger(ArrayOverride), mapOf("a", 1), source)
	assert.True(t, tree.Equal(mapOf("a", 1, "b", 2), got))
}

func TestMerge_InputsAreNotMutated(t *testing.T) {
	target := mapOf("a", mapOf("b", []any{1, 2}), "k", "v")
	source := mapOf("a", mapOf("b", []any{3}, "c", 1))
	source.SetAnnotation("@merge-ignore-target-key k")
	targetBefore := tree.Clone(target)
	sourceBefore := tree.Clone(source)

	for _, strategy := range []ArrayStrategy{ArrayOverride, ArrayMergeInOrder, ArrayAppend} {
		got := mergeMaps(t, NewMerger(strategy), target, source)

		// Mutating the result must not reach back into the inputs.
		inner, _ := got.Get("a")
		inner.(*tree.Map).Set("b", "changed")
		inner.(*tree.Map).Set("new", true)
	}

	assert.True(t, tree.Equal(targetBefore, target), "target mutated: %v", target)
	assert.True(t, tree.Equal(sourceBefore, source), "source mutated: %v", source)
	assert.Equal(t, "@merge-ignore-target-key k", source.Annotation())
}

func TestMerge_ResultHasNoAnnotations(t *testing.T) {
	source := mapOf("a", 1)
	source.SetAnnotation("@merge-ignore-target-key x")

	got := mergeMaps(t, NewMerger(ArrayOverride), tree.NewMap(), source)
	assert.Empty(t, got.Annotation())
}

func TestParseArrayStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    ArrayStrategy
		wantErr bool
	}{
		{"", ArrayOverride, false},
		{"override", ArrayOverride, false},
		{"Override", ArrayOverride, false},
		{"merge-in-order", ArrayMergeInOrder, false},
		{"MergeInOrder", ArrayMergeInOrder, false},
		{"merge_in_order", ArrayMergeInOrder, false},
		{"APPEND", ArrayAppend, false},
		{"concat", ArrayOverride, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseArrayStrategy(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownArrayStrategy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArrayStrategy_Text(t *testing.T) {
	var s ArrayStrategy
	require.NoError(t, s.UnmarshalText([]byte("append")))
	assert.Equal(t, ArrayAppend, s)

	text, err := ArrayMergeInOrder.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "merge-in-order", string(text))

	assert.Error(t, s.UnmarshalText([]byte("bogus")))
	assert.Equal(t, ArrayAppend, s)
}
