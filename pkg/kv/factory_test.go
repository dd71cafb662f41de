package kv_test

import (
	"testing"

	"github.com/leafsii/leafsii-vault/pkg/kv"
	_ "github.com/leafsii/leafsii-vault/pkg/kv/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     kv.Config
		wantErr bool
	}{
		{name: "memory", cfg: kv.Config{Backend: kv.BackendMemory}},
		{name: "redis without url", cfg: kv.Config{Backend: kv.BackendRedis}, wantErr: true},
		{name: "unknown backend", cfg: kv.Config{Backend: "etcd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := kv.NewStoreFromConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, store.Close())
		})
	}
}

func TestParseBackend(t *testing.T) {
	b, err := kv.ParseBackend("redis")
	require.NoError(t, err)
	assert.Equal(t, kv.BackendRedis, b)

	_, err = kv.ParseBackend("disk")
	assert.Error(t, err)
}

func TestBatchOps(t *testing.T) {
	var nilBatch *kv.Batch
	assert.Zero(t, nilBatch.Len())

	b := kv.NewBatch().Set("a", []byte("1")).Del("b")
	ops := b.Ops()
	require.Len(t, ops, 2)
	assert.Equal(t, kv.OpSet, ops[0].Kind)
	assert.Equal(t, "del", ops[1].Kind.String())
}
