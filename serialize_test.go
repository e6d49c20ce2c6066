package rill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func TestSerialize_RoundTrip(t *testing.T) {
	d := isolated(t)
	count := DomainStore(d, 0, WithSID("count"))
	user := DomainStore(d, profile{Name: "guest"}, WithSID("user"))
	inc := DomainEvent[tick](d, "inc")
	On(count, inc, func(n int, _ tick) int { return n + 1 })
	total := Map(count, func(n int) int { return n * 10 })

	first := forkIn(t, d, WithValue(user, profile{Name: "ada", Tags: []string{"admin"}}))
	settle(t, first, inc, nil)
	settle(t, first, inc, nil)

	snap := Serialize(first)
	assert.Equal(t, Snapshot{"count": 2, "user": profile{Name: "ada", Tags: []string{"admin"}}}, snap)

	data, err := snap.Canonical()
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":2,"user":{"name":"ada","tags":["admin"]}}`, string(data))

	parsed, err := ParseSnapshot(data)
	require.NoError(t, err)
	second := forkIn(t, d, WithSnapshot(parsed))

	assert.Equal(t, 2, count.StateIn(second))
	assert.Equal(t, profile{Name: "ada", Tags: []string{"admin"}}, user.StateIn(second))
	assert.Equal(t, 20, total.StateIn(second))

	settle(t, second, inc, nil)
	assert.Equal(t, 3, count.StateIn(second))
	assert.Equal(t, 2, count.StateIn(first))
}

func TestSerialize_OnlyChangesAndIgnore(t *testing.T) {
	d := isolated(t)
	a := DomainStore(d, 1, WithSID("a"))
	b := DomainStore(d, 2, WithSID("b"))
	c := DomainStore(d, 3, WithSID("c"))
	set := DomainEvent[int](d, "set")
	On(b, set, func(_ int, v int) int { return v })

	scope := forkIn(t, d, WithValue(c, 30))
	settle(t, scope, set, 20)

	assert.Equal(t, Snapshot{"a": 1, "b": 20, "c": 30}, Serialize(scope))
	assert.Equal(t, Snapshot{"b": 20, "c": 30}, Serialize(scope, OnlyChanges()))
	assert.Equal(t, Snapshot{"b": 20}, Serialize(scope, OnlyChanges(), Ignore(c, a)))
}

func TestSerialize_KeepsUnknownSIDs(t *testing.T) {
	d := isolated(t)
	count := DomainStore(d, 0, WithSID("count"))

	scope := forkIn(t, d, WithSnapshot(Snapshot{"count": 1, "retired": "x"}))

	snap := Serialize(scope, OnlyChanges())
	assert.Equal(t, Snapshot{"count": 1, "retired": "x"}, snap)
	assert.Equal(t, 1, count.StateIn(scope))
}

func TestSerialize_RejectedSnapshotValueFallsBack(t *testing.T) {
	d := isolated(t)
	count := DomainStore(d, 7, WithSID("count"))

	scope := forkIn(t, d, WithSnapshot(Snapshot{"count": "not a number"}))

	assert.Equal(t, 7, count.StateIn(scope))
}

func TestSerialize_Unserializable(t *testing.T) {
	d := isolated(t)
	named := DomainStore(d, 0, WithSID("named"))
	anon := DomainStore(d, 0, WithName("anon"))
	fx := DomainEffect(d, "fx", func(_ context.Context, n int) (int, error) { return n, nil })
	set := DomainEvent[int](d, "set")
	On(named, set, func(_ int, v int) int { return v })
	On(anon, set, func(_ int, v int) int { return v })

	scope := forkIn(t, d)
	settle(t, scope, set, 5)
	settle(t, scope, fx, 1)

	assert.Equal(t, []string{"TestSerialize_Unserializable/anon"}, scope.Unserializable())
	assert.Equal(t, Snapshot{"named": 5}, Serialize(scope))
}

func TestSerialize_SIDCollisionLastWins(t *testing.T) {
	d := isolated(t)
	first := DomainStore(d, 1, WithSID("dup"), WithName("first"))
	second := DomainStore(d, 2, WithSID("dup"), WithName("second"))

	require.Len(t, d.Collisions(), 1)

	scope := forkIn(t, d, WithSnapshot(Snapshot{"dup": 9}))
	assert.Equal(t, 9, second.StateIn(scope))
	assert.Equal(t, 1, first.StateIn(scope))
	assert.Equal(t, Snapshot{"dup": 9}, Serialize(scope))
}

func TestSnapshot_Hash(t *testing.T) {
	a := Snapshot{"x": 1, "y": []any{"a", "b"}}
	b := Snapshot{"y": []any{"a", "b"}, "x": 1.0}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)

	assert.Equal(t, ha, hb, "hash is over canonical JSON")
	assert.NotEmpty(t, ha)

	hc, err := Snapshot{"x": 2}.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestParseSnapshot(t *testing.T) {
	snap, err := ParseSnapshot([]byte(`{"n": 3, "s": "v"}`))
	require.NoError(t, err)
	assert.Equal(t, Snapshot{"n": 3.0, "s": "v"}, snap)

	snap, err = ParseSnapshot([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, snap)

	_, err = ParseSnapshot([]byte(`{`))
	assert.Error(t, err)
}
