// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"context"
	"testing"
	"time"

	"github.com/leafsii/leafsii-vault/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreFactory creates a fresh Store instance for testing
type StoreFactory func(t *testing.T) kv.Store

type storeTest struct {
	name string
	test func(t *testing.T, store kv.Store)
}

// RunConformanceTests runs all conformance tests against a Store implementation
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	groups := []struct {
		name  string
		tests []storeTest
	}{
		{"StringOperations", []storeTest{
			{"SetGet", testSetGet},
			{"GetNonExistent", testGetNonExistent},
			{"Overwrite", testOverwrite},
		}},
		{"KeyOperations", []storeTest{
			{"Del", testDel},
			{"Exists", testExists},
		}},
		{"TTLOperations", []storeTest{
			{"SetWithTTL", testSetWithTTL},
			{"Expire", testExpire},
			{"TTL", testTTL},
		}},
		{"CounterOperations", []storeTest{
			{"IncrBy", testIncrBy},
			{"IncrByInvalidValue", testIncrByInvalidValue},
		}},
		{"HashOperations", []storeTest{
			{"HSetGet", testHSetGet},
			{"HGetAll", testHGetAll},
			{"HDel", testHDel},
			{"WrongType", testHashWrongType},
		}},
		{"ListOperations", []storeTest{
			{"RPushRange", testRPushRange},
			{"LRangeBounds", testLRangeBounds},
			{"LLen", testLLen},
		}},
		{"BatchOperations", []storeTest{
			{"Apply", testApply},
			{"ApplyEmpty", testApplyEmpty},
		}},
		{"HealthCheck", []storeTest{
			{"Ping", testPing},
		}},
	}

	for _, g := range groups {
		t.Run(g.name, func(t *testing.T) {
			for _, tt := range g.tests {
				t.Run(tt.name, func(t *testing.T) {
					store := factory(t)
					defer store.Close()
					tt.test(t, store)
				})
			}
		})
	}
}

func testSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:string", []byte("hello world")))

	got, err := store.Get(ctx, "test:string")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)
}

func testGetNonExistent(t *testing.T, store kv.Store) {
	_, err := store.Get(context.Background(), "test:missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testOverwrite(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:overwrite", []byte("a")))
	require.NoError(t, store.Set(ctx, "test:overwrite", []byte("b")))

	got, err := store.Get(ctx, "test:overwrite")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}

func testDel(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:del1", []byte("1")))
	require.NoError(t, store.HSet(ctx, "test:del2", "f", []byte("2")))

	n, err := store.Del(ctx, "test:del1", "test:del2", "test:del3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = store.Get(ctx, "test:del1")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testExists(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:exists1", []byte("1")))
	_, err := store.RPush(ctx, "test:exists2", []byte("x"))
	require.NoError(t, err)

	n, err := store.Exists(ctx, "test:exists1", "test:exists2", "test:nope")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func testSetWithTTL(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:ttl", []byte("v"), 50*time.Millisecond))

	_, err := store.Get(ctx, "test:ttl")
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)
	_, err = store.Get(ctx, "test:ttl")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testExpire(t *testing.T, store kv.Store) {
	ctx := context.Background()

	ok, err := store.Expire(ctx, "test:expire-missing", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "test:expire", []byte("v")))
	ok, err = store.Expire(ctx, "test:expire", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(120 * time.Millisecond)
	n, err := store.Exists(ctx, "test:expire")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testTTL(t *testing.T, store kv.Store) {
	ctx := context.Background()

	_, err := store.TTL(ctx, "test:ttl-missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, store.Set(ctx, "test:ttl-none", []byte("v")))
	ttl, err := store.TTL(ctx, "test:ttl-none")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)

	require.NoError(t, store.Set(ctx, "test:ttl-some", []byte("v"), 10*time.Second))
	ttl, err = store.TTL(ctx, "test:ttl-some")
	require.NoError(t, err)
	assert.Greater(t, ttl, 8*time.Second)
	assert.LessOrEqual(t, ttl, 10*time.Second)
}

func testIncrBy(t *testing.T, store kv.Store) {
	ctx := context.Background()
	tests := []struct {
		delta int64
		want  int64
	}{
		{delta: 1, want: 1},
		{delta: 5, want: 6},
		{delta: -10, want: -4},
	}
	for _, tt := range tests {
		got, err := store.IncrBy(ctx, "test:counter", tt.delta)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func testIncrByInvalidValue(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:not-a-number", []byte("abc")))
	_, err := store.IncrBy(ctx, "test:not-a-number", 1)
	assert.Error(t, err)
}

func testHSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.HSet(ctx, "test:hash", "a", []byte("1")))
	require.NoError(t, store.HSet(ctx, "test:hash", "a", []byte("2")))

	got, err := store.HGet(ctx, "test:hash", "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)

	_, err = store.HGet(ctx, "test:hash", "missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)
	_, err = store.HGet(ctx, "test:no-hash", "a")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testHGetAll(t *testing.T, store kv.Store) {
	ctx := context.Background()
	_, err := store.HGetAll(ctx, "test:hgetall")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, store.HSet(ctx, "test:hgetall", "x", []byte("1")))
	require.NoError(t, store.HSet(ctx, "test:hgetall", "y", []byte("2")))

	got, err := store.HGetAll(ctx, "test:hgetall")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"x": []byte("1"), "y": []byte("2")}, got)
}

func testHDel(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.HSet(ctx, "test:hdel", "x", []byte("1")))
	require.NoError(t, store.HSet(ctx, "test:hdel", "y", []byte("2")))

	n, err := store.HDel(ctx, "test:hdel", "x", "z")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.HDel(ctx, "test:hdel", "y")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	exists, err := store.Exists(ctx, "test:hdel")
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func testHashWrongType(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:plain", []byte("v")))
	err := store.HSet(ctx, "test:plain", "f", []byte("x"))
	assert.ErrorIs(t, err, kv.ErrWrongType)
}

func testRPushRange(t *testing.T, store kv.Store) {
	ctx := context.Background()
	n, err := store.RPush(ctx, "test:list", []byte("a"), []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = store.RPush(ctx, "test:list", []byte("c"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := store.LRange(ctx, "test:list", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, got)
}

func testLRangeBounds(t *testing.T, store kv.Store) {
	ctx := context.Background()
	_, err := store.LRange(ctx, "test:range-missing", 0, -1)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	_, err = store.RPush(ctx, "test:range", []byte("0"), []byte("1"), []byte("2"), []byte("3"))
	require.NoError(t, err)

	tests := []struct {
		name        string
		start, stop int64
		want        []string
	}{
		{name: "middle", start: 1, stop: 2, want: []string{"1", "2"}},
		{name: "tail", start: -2, stop: -1, want: []string{"2", "3"}},
		{name: "stop past end", start: 2, stop: 100, want: []string{"2", "3"}},
		{name: "start past end", start: 10, stop: 20, want: []string{}},
		{name: "inverted", start: 3, stop: 1, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.LRange(ctx, "test:range", tt.start, tt.stop)
			require.NoError(t, err)
			strs := make([]string, 0, len(got))
			for _, b := range got {
				strs = append(strs, string(b))
			}
			assert.Equal(t, tt.want, strs)
		})
	}
}

func testLLen(t *testing.T, store kv.Store) {
	ctx := context.Background()
	n, err := store.LLen(ctx, "test:llen")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = store.RPush(ctx, "test:llen", []byte("a"), []byte("b"))
	require.NoError(t, err)
	n, err = store.LLen(ctx, "test:llen")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func testApply(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "test:batch-gone", []byte("x")))

	b := kv.NewBatch().
		Set("test:batch-string", []byte("s")).
		HSet("test:batch-hash", "f1", []byte("1")).
		HSet("test:batch-hash", "f2", []byte("2")).
		Del("test:batch-gone")
	assert.Equal(t, 4, b.Len())
	require.NoError(t, store.Apply(ctx, b))

	got, err := store.Get(ctx, "test:batch-string")
	require.NoError(t, err)
	assert.Equal(t, []byte("s"), got)

	h, err := store.HGetAll(ctx, "test:batch-hash")
	require.NoError(t, err)
	assert.Len(t, h, 2)

	_, err = store.Get(ctx, "test:batch-gone")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testApplyEmpty(t *testing.T, store kv.Store) {
	assert.NoError(t, store.Apply(context.Background(), kv.NewBatch()))
}

func testPing(t *testing.T, store kv.Store) {
	assert.NoError(t, store.Ping(context.Background()))
}
