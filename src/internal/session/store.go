package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"session-store-svc/src/internal/config"
	"session-store-svc/src/internal/models"

	"github.com/sirupsen/logrus"
)

// Cache holds recently resolved documents in front of the repository.
type Cache interface {
	Get(ctx context.Context, id string) (*Document, error)
	Set(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, ids ...string) error
}

// EventPublisher receives session lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event models.SessionEvent) error
}

type Option func(*Store)

func WithCache(cache Cache) Option {
	return func(s *Store) {
		s.cache = cache
	}
}

func WithPublisher(publisher EventPublisher) Option {
	return func(s *Store) {
		s.publisher = publisher
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store implements the session handler contract on top of a Repository.
// Per-session operations live on Handle.
type Store struct {
	repo      Repository
	cache     Cache
	publisher EventPublisher
	timeout   time.Duration
	name      string
	now       func() time.Time
	// highest cutoff of a completed gc; cached documents below it are gone
	gcCutoff atomic.Int64
}

func NewStore(repo Repository, settings *config.SessionSettings, opts ...Option) *Store {
	s := &Store{
		repo:    repo,
		timeout: settings.TimeoutDuration(),
		name:    settings.Name,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Open is part of the save handler contract and has nothing to do.
func (s *Store) Open(path, name string) bool {
	logrus.WithFields(logrus.Fields{
		"path": path,
		"name": name,
	}).Debug("Session store opened")
	return true
}

// Close is part of the save handler contract and has nothing to do.
func (s *Store) Close() bool {
	return true
}

// Name is the configured session name.
func (s *Store) Name() string {
	return s.name
}

// Session returns the session context for id. An empty id yields a handle
// that is not started.
func (s *Store) Session(id string) *Handle {
	return &Handle{store: s, id: id}
}

// Destroy removes the document for id. A missing document is not an error
// and nothing is created.
func (s *Store) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return models.ErrSessionNotStarted
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}

	s.evict(ctx, id)

	if deleted {
		logrus.WithField("session_id", id).Debug("Session destroyed")
		s.publish(ctx, models.SessionEvent{
			SessionID:   id,
			ServiceName: models.ServiceSessionStore,
			Action:      models.ActionSessionDestroyed,
		})
	}

	return nil
}

// GC removes every document that expires before maxLifetime, or before
// now when maxLifetime is not positive.
func (s *Store) GC(ctx context.Context, maxLifetime int64) error {
	_, err := s.gc(ctx, maxLifetime, models.ServiceSessionStore)
	return err
}

func (s *Store) gc(ctx context.Context, maxLifetime int64, service string) (int64, error) {
	cutoff := maxLifetime
	if cutoff <= 0 {
		cutoff = s.now().Unix()
	}

	removed, ids, err := s.repo.RemoveExpired(ctx, cutoff)
	s.evict(ctx, ids...)
	if err != nil {
		logrus.WithError(err).WithField("cutoff", cutoff).Error("Session garbage collection failed")
		return 0, err
	}
	s.raiseGCCutoff(cutoff)

	logrus.WithFields(logrus.Fields{
		"cutoff":  cutoff,
		"removed": removed,
		"service": service,
	}).Info("Session garbage collection completed")

	s.publish(ctx, models.SessionEvent{
		ServiceName: service,
		Action:      models.ActionSessionGC,
		Removed:     removed,
		Cutoff:      cutoff,
	})

	return removed, nil
}

// Stats counts documents against the current time.
func (s *Store) Stats(ctx context.Context) (*models.Stats, error) {
	return s.repo.Stats(ctx, s.now().Unix())
}

// resolve returns the document for id, creating it on first access.
func (s *Store) resolve(ctx context.Context, id string) (*Document, error) {
	if id == "" {
		return nil, models.ErrSessionNotStarted
	}

	if doc := s.cached(ctx, id); doc != nil {
		return doc, nil
	}

	expires := s.now().Add(s.timeout).Unix()
	doc, created, err := s.repo.Resolve(ctx, id, expires)
	if err != nil {
		return nil, err
	}

	if created {
		logrus.WithFields(logrus.Fields{
			"session_id": id,
			"expires":    doc.Expires,
		}).Debug("Session document created")
		s.publish(ctx, models.SessionEvent{
			SessionID:   id,
			ServiceName: models.ServiceSessionStore,
			Action:      models.ActionSessionCreated,
		})
	}

	s.remember(ctx, doc)
	return doc, nil
}

// mutate resolves id and applies one field-level update, reporting success.
func (s *Store) mutate(ctx context.Context, id, op string, update func(ctx context.Context) (*Document, error)) bool {
	log := s.logger(id, op)

	for attempt := 1; ; attempt++ {
		if _, err := s.resolve(ctx, id); err != nil {
			log.WithError(err).Error("Failed to resolve session")
			return false
		}

		doc, err := update(ctx)
		if err == nil {
			s.remember(ctx, doc)
			return true
		}

		// removed behind a cached copy or between resolve and update
		if errors.Is(err, models.ErrSessionNotFound) && attempt == 1 {
			s.evict(ctx, id)
			continue
		}

		log.WithError(err).Error("Failed to persist session")
		return false
	}
}

func (s *Store) logger(id, op string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"session_id": id,
		"operation":  op,
	})
}

func (s *Store) cached(ctx context.Context, id string) *Document {
	if s.cache == nil {
		return nil
	}

	doc, err := s.cache.Get(ctx, id)
	if err != nil {
		logrus.WithError(err).WithField("session_id", id).Warn("Session cache lookup failed")
		return nil
	}
	if doc == nil || doc.IsExpired(s.now()) || doc.Expires < s.gcCutoff.Load() {
		return nil
	}
	return doc
}

func (s *Store) remember(ctx context.Context, doc *Document) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, doc); err != nil {
		logrus.WithError(err).WithField("session_id", doc.ID).Warn("Failed to cache session")
	}
}

func (s *Store) evict(ctx context.Context, ids ...string) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, ids...); err != nil {
		logrus.WithError(err).WithField("sessions", len(ids)).Warn("Failed to evict sessions from cache")
	}
}

func (s *Store) raiseGCCutoff(cutoff int64) {
	for {
		current := s.gcCutoff.Load()
		if cutoff <= current || s.gcCutoff.CompareAndSwap(current, cutoff) {
			return
		}
	}
}

func (s *Store) publish(ctx context.Context, event models.SessionEvent) {
	if s.publisher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"session_id": event.SessionID,
			"action":     event.Action,
		}).Warn("Failed to publish session event")
	}
}
