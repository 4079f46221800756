package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type wrappedInput struct {
	Id int
}

// fakeCacheManager is a hand-written CacheManager double, used instead of a
// generated mock so this test has no extra dependency on a mock-generator
// package.
type fakeCacheManager struct {
	getResult   []*ExampleStruct
	getFound    bool
	refreshCall bool
	setCalls    []setCall
}

type setCall struct {
	key   string
	value []*ExampleStruct
}

func (f *fakeCacheManager) Get(ctx context.Context, key string) ([]*ExampleStruct, bool) {
	return f.getResult, f.getFound
}

func (f *fakeCacheManager) GetMultiple(ctx context.Context, keys []string) (map[string][]*ExampleStruct, bool) {
	return nil, false
}

func (f *fakeCacheManager) GetWithRefresh(ctx context.Context, key string, ttl time.Duration) ([]*ExampleStruct, bool) {
	f.refreshCall = true
	return f.getResult, f.getFound
}

func (f *fakeCacheManager) Set(ctx context.Context, key string, value []*ExampleStruct, ttl time.Duration) {
	f.setCalls = append(f.setCalls, setCall{key: key, value: value})
}

func (f *fakeCacheManager) Delete(ctx context.Context, keys ...string) error { return nil }
func (f *fakeCacheManager) Flush(ctx context.Context) error                 { return nil }

func TestReadThroughCache_Get_WithCacheDisabled(t *testing.T) {
	manager := &fakeCacheManager{}

	readThroughCache := NewReadThroughCache[string, []*ExampleStruct, wrappedInput](
		manager,
		func(ctx context.Context, input wrappedInput) ([]*ExampleStruct, error) {
			return []*ExampleStruct{{ID: input.Id}}, nil
		},
		true,
	)

	examples, err := readThroughCache.Get(context.Background(), "key", wrappedInput{Id: 1}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, []*ExampleStruct{{ID: 1}}, examples)
	require.Empty(t, manager.setCalls, "cache must not be touched when disabled")
}

func TestReadThroughCache_GetWithRefresh_WithCacheDisabled(t *testing.T) {
	manager := &fakeCacheManager{}

	readThroughCache := NewReadThroughCache[string, []*ExampleStruct, wrappedInput](
		manager,
		func(ctx context.Context, input wrappedInput) ([]*ExampleStruct, error) {
			return []*ExampleStruct{{ID: input.Id}}, nil
		},
		true,
	)

	examples, err := readThroughCache.GetWithRefresh(context.Background(), "key", wrappedInput{Id: 1}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, []*ExampleStruct{{ID: 1}}, examples)
	require.False(t, manager.refreshCall, "cache must not be touched when disabled")
}

func TestReadThroughCache_Get_WithValueInCache(t *testing.T) {
	manager := &fakeCacheManager{
		getResult: []*ExampleStruct{{ID: 1, Name: "Example"}},
		getFound:  true,
	}

	readThroughCache := NewReadThroughCache[string, []*ExampleStruct, wrappedInput](
		manager,
		func(ctx context.Context, input wrappedInput) ([]*ExampleStruct, error) {
			return []*ExampleStruct{{ID: input.Id}}, nil
		},
		false,
	)

	examples, err := readThroughCache.Get(context.Background(), "key", wrappedInput{Id: 1}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, []*ExampleStruct{{ID: 1, Name: "Example"}}, examples)
}

func TestReadThroughCache_Get_EmptyCache(t *testing.T) {
	manager := &fakeCacheManager{}

	readThroughCache := NewReadThroughCache[string, []*ExampleStruct, wrappedInput](
		manager,
		func(ctx context.Context, input wrappedInput) ([]*ExampleStruct, error) {
			return []*ExampleStruct{{ID: input.Id}}, nil
		},
		false,
	)

	examples, err := readThroughCache.Get(context.Background(), "key", wrappedInput{Id: 1}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, []*ExampleStruct{{ID: 1}}, examples)
	require.Len(t, manager.setCalls, 1)
	require.Equal(t, "key", manager.setCalls[0].key)
}

func TestReadThroughCache_Get_DatabaseError(t *testing.T) {
	manager := &fakeCacheManager{}

	readThroughCache := NewReadThroughCache[string, []*ExampleStruct, wrappedInput](
		manager,
		func(ctx context.Context, input wrappedInput) ([]*ExampleStruct, error) {
			return nil, errors.New("failed to get data")
		},
		false,
	)

	_, err := readThroughCache.Get(context.Background(), "key", wrappedInput{Id: 1}, time.Minute)
	require.Error(t, err)
}

func TestReadThroughCache_GetWithRefresh_WithValueInCache(t *testing.T) {
	manager := &fakeCacheManager{
		getResult: []*ExampleStruct{{ID: 1, Name: "Example"}},
		getFound:  true,
	}

	readThroughCache := NewReadThroughCache[string, []*ExampleStruct, wrappedInput](
		manager,
		func(ctx context.Context, input wrappedInput) ([]*ExampleStruct, error) {
			return []*ExampleStruct{{ID: input.Id}}, nil
		},
		false,
	)

	examples, err := readThroughCache.GetWithRefresh(context.Background(), "key", wrappedInput{Id: 1}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, []*ExampleStruct{{ID: 1, Name: "Example"}}, examples)
}

func TestReadThroughCache_GetWithRefresh_EmptyCache(t *testing.T) {
	manager := &fakeCacheManager{}

	readThroughCache := NewReadThroughCache[string, []*ExampleStruct, wrappedInput](
		manager,
		func(ctx context.Context, input wrappedInput) ([]*ExampleStruct, error) {
			return []*ExampleStruct{{ID: input.Id}}, nil
		},
		false,
	)

	examples, err := readThroughCache.GetWithRefresh(context.Background(), "key", wrappedInput{Id: 1}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, []*ExampleStruct{{ID: 1}}, examples)
	require.Len(t, manager.setCalls, 1)
}

func TestReadThroughCache_GetWithRefresh_DatabaseError(t *testing.T) {
	manager := &fakeCacheManager{}

	readThroughCache := NewReadThroughCache[string, []*ExampleStruct, wrappedInput](
		manager,
		func(ctx context.Context, input wrappedInput) ([]*ExampleStruct, error) {
			return nil, errors.New("failed to get data")
		},
		false,
	)

	_, err := readThroughCache.GetWithRefresh(context.Background(), "key", wrappedInput{Id: 1}, time.Minute)
	require.Error(t, err)
}
