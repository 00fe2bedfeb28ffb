package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"session-store-svc/src/internal/config"
	"session-store-svc/src/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

var testNow = time.Unix(1_700_000_000, 0)

const testTimeout = 1200

func newTestStore(t *testing.T, repo Repository, opts ...Option) *Store {
	t.Helper()

	settings := &config.SessionSettings{Timeout: testTimeout, Name: "shop"}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewStore(repo, settings, opts...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event models.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Action)
	}
	return out
}

type mapCache struct {
	docs map[string]*Document
	gets int
}

func newMapCache() *mapCache {
	return &mapCache{docs: map[string]*Document{}}
}

func (c *mapCache) Get(_ context.Context, id string) (*Document, error) {
	c.gets++
	doc, ok := c.docs[id]
	if !ok {
		return nil, nil
	}
	return doc.clone(), nil
}

func (c *mapCache) Set(_ context.Context, doc *Document) error {
	c.docs[doc.ID] = doc.clone()
	return nil
}

func (c *mapCache) Delete(_ context.Context, ids ...string) error {
	for _, id := range ids {
		delete(c.docs, id)
	}
	return nil
}

type failingRepository struct {
	Repository
}

func (failingRepository) SetField(context.Context, string, string, interface{}) (*Document, error) {
	return nil, models.ErrSessionUpdating
}

func (failingRepository) UnsetField(context.Context, string, string) (*Document, error) {
	return nil, models.ErrSessionUpdating
}

func (failingRepository) ClearData(context.Context, string) (*Document, error) {
	return nil, models.ErrSessionUpdating
}

func TestStore_OpenClose(t *testing.T) {
	store := newTestStore(t, NewMemoryRepository())

	assert.True(t, store.Open("/tmp", "shop"))
	assert.True(t, store.Close())
	assert.Equal(t, "shop", store.Name())
}

func TestStore_FirstAccessCreatesOneDocument(t *testing.T) {
	ctx := context.Background()

	for name, access := range map[string]func(h *Handle){
		"read":  func(h *Handle) { _, _ = h.Read(ctx, "anything") },
		"write": func(h *Handle) { h.Write(ctx, "k", "v") },
		"check": func(h *Handle) { _, _ = h.Check(ctx, "k") },
	} {
		t.Run(name, func(t *testing.T) {
			repo := NewMemoryRepository()
			store := newTestStore(t, repo)

			access(store.Session("fresh"))

			doc, err := repo.FindByID(ctx, "fresh")
			require.NoError(t, err)
			assert.Equal(t, "fresh", doc.ID)
			assert.Equal(t, testNow.Unix()+testTimeout, doc.Expires)

			stats, err := repo.Stats(ctx, testNow.Unix())
			require.NoError(t, err)
			assert.Equal(t, int64(1), stats.Total)
		})
	}
}

func TestHandle_WriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryRepository())
	h := store.Session("abc")

	values := map[string]interface{}{
		"int":    42,
		"zero":   0,
		"empty":  "",
		"null":   nil,
		"bool":   false,
		"list":   []interface{}{"a", 1, nil},
		"nested": map[string]interface{}{"profile": map[string]interface{}{"name": "Ada", "tags": []interface{}{"x"}}},
	}

	for key, value := range values {
		require.True(t, h.Write(ctx, key, value), key)
	}

	for key, value := range values {
		got, err := h.Read(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, value, got, key)

		exists, err := h.Check(ctx, key)
		require.NoError(t, err)
		assert.True(t, exists, "explicit values, including nil, are present: %s", key)
	}
}

func TestHandle_ReadMissingKeyIsNil(t *testing.T) {
	store := newTestStore(t, NewMemoryRepository())

	got, err := store.Session("abc").Read(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHandle_ReadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryRepository())
	h := store.Session("abc")

	require.True(t, h.Write(ctx, "cart", map[string]interface{}{"items": 1}))

	got, err := h.Read(ctx, "cart")
	require.NoError(t, err)
	got.(map[string]interface{})["items"] = 99

	all, err := h.ReadAll(ctx)
	require.NoError(t, err)
	all["cart"] = "replaced"

	again, err := h.Read(ctx, "cart")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"items": 1}, again)
}

func TestHandle_DeleteThenCheck(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryRepository())
	h := store.Session("abc")

	require.True(t, h.Write(ctx, "present", "v"))

	for _, key := range []string{"present", "never-written"} {
		require.True(t, h.Delete(ctx, key), key)

		exists, err := h.Check(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists, key)

		got, err := h.Read(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got, key)
	}
}

func TestHandle_ClearThenReadAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryRepository())
	h := store.Session("abc")

	require.True(t, h.Write(ctx, "a", 1))
	require.True(t, h.Write(ctx, "b", 2))
	require.True(t, h.Clear(ctx))

	all, err := h.Read(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, all)
	assert.Empty(t, all)
}

func TestHandle_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	store := newTestStore(t, repo)
	h := store.Session("abc")

	for _, key := range []string{"a.b", "$where", "nul\x00"} {
		assert.False(t, h.Write(ctx, key, 1), key)
		assert.False(t, h.Delete(ctx, key), key)

		_, err := h.Check(ctx, key)
		assert.ErrorIs(t, err, models.ErrInvalidKey, key)

		_, err = h.Read(ctx, key)
		assert.ErrorIs(t, err, models.ErrInvalidKey, key)
	}

	_, err := repo.FindByID(ctx, "abc")
	assert.ErrorIs(t, err, models.ErrSessionNotFound, "rejected keys never touch the store")
}

func TestHandle_NotStarted(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryRepository())
	h := store.Session("")

	assert.False(t, h.IsStarted())
	assert.Equal(t, "", h.Key())

	_, err := h.Read(ctx, "k")
	assert.ErrorIs(t, err, models.ErrSessionNotStarted)
	assert.False(t, h.Write(ctx, "k", "v"))
	assert.False(t, h.Clear(ctx))
	assert.ErrorIs(t, h.Destroy(ctx), models.ErrSessionNotStarted)
}

func TestHandle_SetKeySwitchesSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryRepository())
	h := store.Session("")

	assert.Equal(t, "first", h.SetKey("first"))
	assert.True(t, h.IsStarted())
	require.True(t, h.Write(ctx, "k", "one"))

	h.SetKey("second")
	got, err := h.Read(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	h.SetKey("first")
	got, err = h.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "one", got)
}

func TestHandle_PersistenceFailureIsFalse(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, failingRepository{Repository: NewMemoryRepository()})
	h := store.Session("abc")

	assert.False(t, h.Write(ctx, "k", "v"))
	assert.False(t, h.Delete(ctx, "k"))
	assert.False(t, h.Clear(ctx))
}

func TestStore_ScenarioDestroyThenLazyRecreate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	store := newTestStore(t, repo)
	h := store.Session("abc")

	require.True(t, h.Write(ctx, "user_id", 42))

	got, err := h.Read(ctx, "user_id")
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	got, err = h.Read(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, h.Destroy(ctx))
	_, err = repo.FindByID(ctx, "abc")
	require.ErrorIs(t, err, models.ErrSessionNotFound)

	// reading a destroyed session lazily recreates it empty
	all, err := h.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	doc, err := repo.FindByID(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, doc.SessionData)
}

// The original adapter resolved (and so created) the document before
// deleting it. Destroy here deletes by id and leaves nothing behind.
func TestStore_DestroyAbsentSessionCreatesNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	publisher := &recordingPublisher{}
	store := newTestStore(t, repo, WithPublisher(publisher))

	require.NoError(t, store.Destroy(ctx, "ghost"))

	_, err := repo.FindByID(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	assert.Empty(t, publisher.actions())
}

func TestStore_GCCutoff(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	store := newTestStore(t, repo)

	require.NoError(t, repo.Save(ctx, &Document{ID: "a", SessionData: bson.M{}, Expires: 100}))
	require.NoError(t, repo.Save(ctx, &Document{ID: "b", SessionData: bson.M{}, Expires: 200}))
	require.NoError(t, repo.Save(ctx, &Document{ID: "c", SessionData: bson.M{}, Expires: 150}))

	require.NoError(t, store.GC(ctx, 150))

	_, err := repo.FindByID(ctx, "a")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	_, err = repo.FindByID(ctx, "b")
	assert.NoError(t, err)
	_, err = repo.FindByID(ctx, "c")
	assert.NoError(t, err, "expires equal to the cutoff survives")
}

func TestStore_GCDefaultsToNow(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	store := newTestStore(t, repo)

	require.NoError(t, repo.Save(ctx, &Document{ID: "past", SessionData: bson.M{}, Expires: testNow.Unix() - 1}))
	require.NoError(t, repo.Save(ctx, &Document{ID: "now", SessionData: bson.M{}, Expires: testNow.Unix()}))
	require.NoError(t, repo.Save(ctx, &Document{ID: "future", SessionData: bson.M{}, Expires: testNow.Unix() + 60}))

	require.NoError(t, store.GC(ctx, 0))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(0), stats.Expired)
}

func TestStore_PublishesLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	publisher := &recordingPublisher{}
	store := newTestStore(t, NewMemoryRepository(), WithPublisher(publisher))
	h := store.Session("abc")

	require.True(t, h.Write(ctx, "k", "v"))
	require.True(t, h.Write(ctx, "k", "w"))
	require.NoError(t, h.Destroy(ctx))
	require.NoError(t, store.GC(ctx, 0))

	assert.Equal(t, []string{
		models.ActionSessionCreated,
		models.ActionSessionDestroyed,
		models.ActionSessionGC,
	}, publisher.actions())
}

func TestStore_CacheServesReadsAndIsKeptCurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	cache := newMapCache()
	store := newTestStore(t, repo, WithCache(cache))
	h := store.Session("abc")

	require.True(t, h.Write(ctx, "k", "v"))
	require.Contains(t, cache.docs, "abc")
	assert.Equal(t, "v", cache.docs["abc"].SessionData["k"])

	// served from cache even though the repository copy changed underneath
	_, err := repo.SetField(ctx, "abc", "k", "changed")
	require.NoError(t, err)
	got, err := h.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, h.Destroy(ctx))
	assert.NotContains(t, cache.docs, "abc")
}

func TestStore_WriteRecoversFromStaleCache(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	cache := newMapCache()
	store := newTestStore(t, repo, WithCache(cache))
	h := store.Session("abc")

	require.True(t, h.Write(ctx, "k", "v"))

	// removed by another process; the cached copy survives
	_, err := repo.Delete(ctx, "abc")
	require.NoError(t, err)

	require.True(t, h.Write(ctx, "k", "again"))

	doc, err := repo.FindByID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, bson.M{"k": "again"}, doc.SessionData)
}

func TestStore_ExpiredCacheEntryIsIgnored(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	cache := newMapCache()
	store := newTestStore(t, repo, WithCache(cache))

	cache.docs["abc"] = &Document{ID: "abc", SessionData: bson.M{"k": "stale"}, Expires: testNow.Unix() - 1}

	got, err := store.Session("abc").Read(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ReadFailurePropagates(t *testing.T) {
	store := newTestStore(t, erroringResolveRepository{Repository: NewMemoryRepository()})

	_, err := store.Session("abc").Read(context.Background(), "k")
	assert.True(t, errors.Is(err, models.ErrDatabaseQuery))
}

type erroringResolveRepository struct {
	Repository
}

func (erroringResolveRepository) Resolve(context.Context, string, int64) (*Document, bool, error) {
	return nil, false, models.ErrDatabaseQuery
}

func TestStore_GCEvictsCachedSessions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	cache := newMapCache()
	store := newTestStore(t, repo, WithCache(cache))
	h := store.Session("abc")

	require.True(t, h.Write(ctx, "user_id", 42))
	require.Contains(t, cache.docs, "abc")

	// a cutoff past the session's expiry removes it although it is not yet due
	require.NoError(t, store.GC(ctx, testNow.Unix()+10_000))
	assert.NotContains(t, cache.docs, "abc")

	got, err := h.Read(ctx, "user_id")
	require.NoError(t, err)
	assert.Nil(t, got)

	doc, err := repo.FindByID(ctx, "abc")
	require.NoError(t, err, "the read recreates the session")
	assert.Empty(t, doc.SessionData)
}

func TestStore_CachedCopyBelowGCCutoffIsIgnored(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	cache := newMapCache()
	store := newTestStore(t, repo, WithCache(cache))

	require.NoError(t, store.GC(ctx, testNow.Unix()+10_000))

	// cached by another instance before the gc and never evicted here
	cache.docs["abc"] = &Document{ID: "abc", SessionData: bson.M{"k": "stale"}, Expires: testNow.Unix() + testTimeout}

	got, err := store.Session("abc").Read(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHandle_TypedValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryRepository())
	h := store.Session("abc")

	tags := []string{"a", "b"}
	require.True(t, h.Write(ctx, "tags", tags))
	tags[0] = "changed"

	got, err := h.Read(ctx, "tags")
	require.NoError(t, err)
	require.Equal(t, []interface{}{"a", "b"}, got)
	got.([]interface{})[1] = "changed"

	again, err := h.Read(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, again)
}

func TestHandle_UnencodableValueIsRejected(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	store := newTestStore(t, repo)
	h := store.Session("abc")

	assert.False(t, h.Write(ctx, "ch", make(chan int)))

	exists, err := h.Check(ctx, "ch")
	require.NoError(t, err)
	assert.False(t, exists)
}
