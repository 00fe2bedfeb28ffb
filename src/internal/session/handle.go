package session

import (
	"context"

	"session-store-svc/src/internal/models"
)

// Handle is the session context of one request: the current session id
// and the store it reads from. A Handle is not safe for concurrent use.
type Handle struct {
	store *Store
	id    string
}

// IsStarted reports whether a session id is assigned.
func (h *Handle) IsStarted() bool {
	return h.id != ""
}

// Key returns the current session id, or "" when none is assigned.
func (h *Handle) Key() string {
	return h.id
}

// SetKey reassigns the id used by every later call and returns it.
func (h *Handle) SetKey(id string) string {
	h.id = id
	return h.id
}

func (h *Handle) Check(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	doc, err := h.store.resolve(ctx, h.id)
	if err != nil {
		return false, err
	}
	return doc.Has(key), nil
}

// Read returns the value stored under key, nil when it is absent, or the
// whole session data when key is empty. Values come back as BSON decodes
// them: integers as int when they fit in 32 bits and int64 otherwise,
// floats as float64, slices and maps of any element type as []interface{}
// and map[string]interface{}.
func (h *Handle) Read(ctx context.Context, key string) (interface{}, error) {
	if key == "" {
		return h.ReadAll(ctx)
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	doc, err := h.store.resolve(ctx, h.id)
	if err != nil {
		return nil, err
	}

	value, _ := doc.Get(key)
	return value, nil
}

func (h *Handle) ReadAll(ctx context.Context) (map[string]interface{}, error) {
	doc, err := h.store.resolve(ctx, h.id)
	if err != nil {
		return nil, err
	}
	return doc.Data(), nil
}

func (h *Handle) Write(ctx context.Context, key string, value interface{}) bool {
	if !h.validKey(key, "write") {
		return false
	}

	return h.store.mutate(ctx, h.id, "write", func(ctx context.Context) (*Document, error) {
		return h.store.repo.SetField(ctx, h.id, key, value)
	})
}

func (h *Handle) Delete(ctx context.Context, key string) bool {
	if !h.validKey(key, "delete") {
		return false
	}

	return h.store.mutate(ctx, h.id, "delete", func(ctx context.Context) (*Document, error) {
		return h.store.repo.UnsetField(ctx, h.id, key)
	})
}

func (h *Handle) Clear(ctx context.Context) bool {
	return h.store.mutate(ctx, h.id, "clear", func(ctx context.Context) (*Document, error) {
		return h.store.repo.ClearData(ctx, h.id)
	})
}

// Destroy removes the backing document. Later reads recreate it empty.
func (h *Handle) Destroy(ctx context.Context) error {
	if !h.IsStarted() {
		return models.ErrSessionNotStarted
	}
	return h.store.Destroy(ctx, h.id)
}

func (h *Handle) validKey(key, op string) bool {
	if err := validateKey(key); err != nil {
		h.store.logger(h.id, op).WithError(err).Warn("Rejected session key")
		return false
	}
	return true
}
