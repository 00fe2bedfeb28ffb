package session

import (
	"context"
	"fmt"
	"sync"

	"session-store-svc/src/internal/models"

	"go.mongodb.org/mongo-driver/bson"
)

// memoryRepository keeps documents in process memory. Values pass through a
// BSON round trip on the way in, so they come back with the same types the
// Mongo driver returns and never alias the caller's memory.
type memoryRepository struct {
	mu        sync.RWMutex
	documents map[string]*Document
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		documents: make(map[string]*Document),
	}
}

func (r *memoryRepository) EnsureIndexes(_ context.Context) error {
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.documents[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return doc.clone(), nil
}

func (r *memoryRepository) Create(_ context.Context, id string, expires int64) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.documents[id]; ok {
		return nil, models.ErrDuplicateRecord
	}

	doc := newDocument(id, expires)
	r.documents[id] = doc
	return doc.clone(), nil
}

func (r *memoryRepository) Resolve(_ context.Context, id string, expires int64) (*Document, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if doc, ok := r.documents[id]; ok {
		return doc.clone(), false, nil
	}

	doc := newDocument(id, expires)
	r.documents[id] = doc
	return doc.clone(), true, nil
}

func (r *memoryRepository) Save(_ context.Context, doc *Document) error {
	data, err := bsonData(doc.SessionData)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrSessionUpdating, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.documents[doc.ID] = &Document{ID: doc.ID, SessionData: data, Expires: doc.Expires}
	return nil
}

func (r *memoryRepository) SetField(_ context.Context, id, key string, value interface{}) (*Document, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	stored, err := bsonValue(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSessionUpdating, err)
	}

	return r.mutate(id, func(doc *Document) {
		doc.SessionData[key] = stored
	})
}

func (r *memoryRepository) UnsetField(_ context.Context, id, key string) (*Document, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	return r.mutate(id, func(doc *Document) {
		delete(doc.SessionData, key)
	})
}

func (r *memoryRepository) ClearData(_ context.Context, id string) (*Document, error) {
	return r.mutate(id, func(doc *Document) {
		doc.SessionData = bson.M{}
	})
}

func (r *memoryRepository) mutate(id string, fn func(doc *Document)) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	fn(doc)
	return doc.clone(), nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.documents[id]; !ok {
		return false, nil
	}
	delete(r.documents, id)
	return true, nil
}

func (r *memoryRepository) RemoveExpired(_ context.Context, cutoff int64) (int64, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, doc := range r.documents {
		if doc.Expires < cutoff {
			delete(r.documents, id)
			ids = append(ids, id)
		}
	}
	return int64(len(ids)), ids, nil
}

func (r *memoryRepository) Stats(_ context.Context, now int64) (*models.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &models.Stats{Cutoff: now}
	for _, doc := range r.documents {
		stats.Total++
		if doc.Expires < now {
			stats.Expired++
		} else {
			stats.Active++
		}
	}
	return stats, nil
}
