package directory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lumir-wiki/internal/store"
)

func TestHTTPProvider_FetchesSnapshot(t *testing.T) {
	var gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/directory/snapshot", r.URL.Path)
		gotAPIKey = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"departmentIds": ["dept-1", "dept-2"],
			"rankIds": ["rank-1"],
			"positionIds": []
		}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "secret", zap.NewNop())
	snap, err := p.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "secret", gotAPIKey)
	assert.True(t, snap.HasDepartment("dept-1"))
	assert.True(t, snap.HasDepartment("dept-2"))
	assert.False(t, snap.HasDepartment("dept-3"))
	assert.True(t, snap.HasRank("rank-1"))
	assert.False(t, snap.HasPosition("pos-1"))
}

func TestHTTPProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "", zap.NewNop())
	_, err := p.Snapshot(context.Background())
	assert.Error(t, err)
}

type countingProvider struct {
	snap  *Snapshot
	err   error
	calls int
}

func (c *countingProvider) Snapshot(context.Context) (*Snapshot, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.snap, nil
}

func TestCachedProvider_ServesFromCache(t *testing.T) {
	inner := &countingProvider{snap: &Snapshot{
		DepartmentIDs: map[string]struct{}{"dept-1": {}},
		RankIDs:       map[string]struct{}{},
		PositionIDs:   map[string]struct{}{},
	}}
	kv := store.NewMemoryKV()
	cached := NewCachedProvider(inner, kv, time.Minute, zap.NewNop())
	ctx := context.Background()

	snap, err := cached.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.HasDepartment("dept-1"))
	assert.Equal(t, 1, inner.calls)

	// Second call is a cache hit.
	snap, err = cached.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.HasDepartment("dept-1"))
	assert.Equal(t, 1, inner.calls)
}

func TestCachedProvider_ExpiredCacheRefetches(t *testing.T) {
	inner := &countingProvider{snap: &Snapshot{
		DepartmentIDs: map[string]struct{}{},
		RankIDs:       map[string]struct{}{},
		PositionIDs:   map[string]struct{}{},
	}}
	kv := store.NewMemoryKV()
	cached := NewCachedProvider(inner, kv, time.Nanosecond, zap.NewNop())
	ctx := context.Background()

	_, err := cached.Snapshot(ctx)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	_, err = cached.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedProvider_InnerErrorSurfaces(t *testing.T) {
	inner := &countingProvider{err: errors.New("directory down")}
	cached := NewCachedProvider(inner, store.NewMemoryKV(), time.Minute, zap.NewNop())

	_, err := cached.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestStaticProvider_SetReplacesSets(t *testing.T) {
	p := NewStaticProvider([]string{"dept-1"}, nil, []string{"pos-1"})
	ctx := context.Background()

	snap, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.HasDepartment("dept-1"))
	assert.True(t, snap.HasPosition("pos-1"))

	p.SetDepartments([]string{"dept-2"})
	snap, err = p.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.HasDepartment("dept-1"))
	assert.True(t, snap.HasDepartment("dept-2"))
}
