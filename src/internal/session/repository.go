package session

import (
	"context"
	"errors"

	"session-store-svc/src/clients"
	"session-store-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository is the narrow set of document operations the session store needs.
type Repository interface {
	EnsureIndexes(ctx context.Context) error
	FindByID(ctx context.Context, id string) (*Document, error)
	// Create and Save are not used by Store; they serve tools and
	// migrations that write documents directly.
	Create(ctx context.Context, id string, expires int64) (*Document, error)
	Save(ctx context.Context, doc *Document) error
	// Resolve returns the document for id, inserting an empty one that
	// expires at expires when none exists. The bool reports an insert.
	Resolve(ctx context.Context, id string, expires int64) (*Document, bool, error)
	SetField(ctx context.Context, id, key string, value interface{}) (*Document, error)
	UnsetField(ctx context.Context, id, key string) (*Document, error)
	ClearData(ctx context.Context, id string) (*Document, error)
	Delete(ctx context.Context, id string) (bool, error)
	// RemoveExpired deletes every document with expires < cutoff and
	// returns how many went and their ids.
	RemoveExpired(ctx context.Context, cutoff int64) (int64, []string, error)
	Stats(ctx context.Context, now int64) (*models.Stats, error)
}

const removeBatchSize = 500

type repository struct {
	collection *mongo.Collection
}

// NewMongoRepository stores sessions in the collection of db's connection.
func NewMongoRepository(db *clients.MongoDB) Repository {
	return newMongoRepository(db.Collection())
}

func newMongoRepository(collection *mongo.Collection) *repository {
	return &repository{collection: collection}
}

func (r *repository) EnsureIndexes(ctx context.Context) error {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: fieldExpires, Value: 1}},
		Options: options.Index().SetName("expires_1"),
	}

	if _, err := r.collection.Indexes().CreateOne(ctx, index); err != nil {
		logrus.WithError(err).Error("Failed to create expires index")
		return models.ErrDatabaseQuery
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id string) (*Document, error) {
	var doc Document
	filter := bson.M{fieldID: id}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrSessionNotFound
		}
		logrus.WithError(err).WithField("session_id", id).Error("Failed to get session")
		return nil, models.ErrDatabaseQuery
	}

	return normalize(&doc), nil
}

func (r *repository) Create(ctx context.Context, id string, expires int64) (*Document, error) {
	doc := newDocument(id, expires)

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, models.ErrDuplicateRecord
		}
		logrus.WithError(err).WithField("session_id", id).Error("Failed to create session")
		return nil, models.ErrSessionCreating
	}

	return doc, nil
}

func (r *repository) Resolve(ctx context.Context, id string, expires int64) (*Document, bool, error) {
	doc, created, err := r.resolve(ctx, id, expires)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		// a concurrent upsert for the same id won; the document exists now
		doc, created, err = r.resolve(ctx, id, expires)
	}
	if err != nil {
		logrus.WithError(err).WithField("session_id", id).Error("Failed to resolve session")
		return nil, false, models.ErrSessionCreating
	}

	return doc, created, nil
}

// resolve upserts in one round trip. On a match $setOnInsert changes
// nothing, so the pre-image is the current document; no pre-image means
// this call inserted it.
func (r *repository) resolve(ctx context.Context, id string, expires int64) (*Document, bool, error) {
	filter := bson.M{fieldID: id}
	update := bson.M{
		"$setOnInsert": bson.M{
			fieldSessionData: bson.M{},
			fieldExpires:     expires,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var doc Document
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return newDocument(id, expires), true, nil
	}
	if err != nil {
		return nil, false, err
	}

	return normalize(&doc), false, nil
}

func (r *repository) Save(ctx context.Context, doc *Document) error {
	if doc.SessionData == nil {
		doc.SessionData = bson.M{}
	}

	filter := bson.M{fieldID: doc.ID}
	_, err := r.collection.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		logrus.WithError(err).WithField("session_id", doc.ID).Error("Failed to save session")
		return models.ErrSessionUpdating
	}

	return nil
}

func (r *repository) SetField(ctx context.Context, id, key string, value interface{}) (*Document, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	update := bson.M{
		"$set": bson.M{dataPath(key): value},
	}
	return r.update(ctx, id, update)
}

func (r *repository) UnsetField(ctx context.Context, id, key string) (*Document, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	update := bson.M{
		"$unset": bson.M{dataPath(key): ""},
	}
	return r.update(ctx, id, update)
}

func (r *repository) ClearData(ctx context.Context, id string) (*Document, error) {
	update := bson.M{
		"$set": bson.M{fieldSessionData: bson.M{}},
	}
	return r.update(ctx, id, update)
}

func (r *repository) update(ctx context.Context, id string, update bson.M) (*Document, error) {
	filter := bson.M{fieldID: id}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc Document
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrSessionNotFound
		}
		logrus.WithError(err).WithField("session_id", id).Error("Failed to update session")
		return nil, models.ErrSessionUpdating
	}

	return normalize(&doc), nil
}

func (r *repository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.collection.DeleteOne(ctx, bson.M{fieldID: id})
	if err != nil {
		logrus.WithError(err).WithField("session_id", id).Error("Failed to delete session")
		return false, models.ErrSessionDeleting
	}

	return result.DeletedCount > 0, nil
}

// RemoveExpired collects the expired ids first and deletes exactly those,
// so every id it reports is one the caller can evict from caches.
func (r *repository) RemoveExpired(ctx context.Context, cutoff int64) (int64, []string, error) {
	filter := bson.M{
		fieldExpires: bson.M{"$lt": cutoff},
	}
	opts := options.Find().SetProjection(bson.M{fieldID: 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.WithError(err).WithField("cutoff", cutoff).Error("Failed to find expired sessions")
		return 0, nil, models.ErrDatabaseQuery
	}
	defer cursor.Close(ctx)

	var (
		removed int64
		ids     []string
		batch   []string
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		result, err := r.collection.DeleteMany(ctx, bson.M{
			fieldID:      bson.M{"$in": batch},
			fieldExpires: bson.M{"$lt": cutoff},
		})
		if err != nil {
			logrus.WithError(err).WithField("cutoff", cutoff).Error("Failed to remove expired sessions")
			return models.ErrDatabaseDelete
		}
		removed += result.DeletedCount
		ids = append(ids, batch...)
		batch = nil
		return nil
	}

	for cursor.Next(ctx) {
		var ref struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&ref); err != nil {
			logrus.WithError(err).Error("Failed to decode expired session id")
			return removed, ids, models.ErrDatabaseQuery
		}
		batch = append(batch, ref.ID)
		if len(batch) == removeBatchSize {
			if err := flush(); err != nil {
				return removed, ids, err
			}
		}
	}
	if err := cursor.Err(); err != nil {
		logrus.WithError(err).WithField("cutoff", cutoff).Error("Failed to iterate expired sessions")
		return removed, ids, models.ErrDatabaseQuery
	}
	if err := flush(); err != nil {
		return removed, ids, err
	}

	return removed, ids, nil
}

func (r *repository) Stats(ctx context.Context, now int64) (*models.Stats, error) {
	total, err := r.count(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	expired, err := r.count(ctx, bson.M{fieldExpires: bson.M{"$lt": now}})
	if err != nil {
		return nil, err
	}

	return &models.Stats{
		Total:   total,
		Active:  total - expired,
		Expired: expired,
		Cutoff:  now,
	}, nil
}

func (r *repository) count(ctx context.Context, filter bson.M) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		logrus.WithError(err).Error("Failed to count sessions")
		return 0, models.ErrDatabaseQuery
	}
	return count, nil
}

func normalize(doc *Document) *Document {
	if doc.SessionData == nil {
		doc.SessionData = bson.M{}
	}
	return doc
}
