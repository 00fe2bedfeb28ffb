package session

import (
	"fmt"
	"strings"
	"time"

	"session-store-svc/src/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	fieldID          = "_id"
	fieldSessionData = "sessionData"
	fieldExpires     = "expires"
)

// Document is the persisted state of one session.
type Document struct {
	ID          string `json:"id" bson:"_id"`
	SessionData bson.M `json:"sessionData" bson:"sessionData"`
	Expires     int64  `json:"expires" bson:"expires"`
}

func newDocument(id string, expires int64) *Document {
	return &Document{
		ID:          id,
		SessionData: bson.M{},
		Expires:     expires,
	}
}

// Has reports whether key is present in the session data.
func (d *Document) Has(key string) bool {
	_, ok := d.SessionData[key]
	return ok
}

// Get returns a detached copy of the value stored under key.
func (d *Document) Get(key string) (interface{}, bool) {
	value, ok := d.SessionData[key]
	if !ok {
		return nil, false
	}
	return plain(value), true
}

// Data returns the whole session data as plain maps and slices.
func (d *Document) Data() map[string]interface{} {
	out := make(map[string]interface{}, len(d.SessionData))
	for k, v := range d.SessionData {
		out[k] = plain(v)
	}
	return out
}

// IsExpired reports whether gc at now would reclaim the document.
func (d *Document) IsExpired(now time.Time) bool {
	return d.Expires < now.Unix()
}

func (d *Document) clone() *Document {
	return &Document{
		ID:          d.ID,
		SessionData: bson.M(d.Data()),
		Expires:     d.Expires,
	}
}

// plain converts decoded BSON containers into map[string]interface{} and
// []interface{}, narrows int32 to int and copies everything else it can
// reach.
func plain(v interface{}) interface{} {
	switch t := v.(type) {
	case int32:
		return int(t)
	case primitive.Binary:
		return primitive.Binary{Subtype: t.Subtype, Data: append([]byte(nil), t.Data...)}
	case primitive.M:
		return plainMap(t)
	case map[string]interface{}:
		return plainMap(t)
	case primitive.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = plain(e.Value)
		}
		return out
	case primitive.A:
		return plainSlice(t)
	case []interface{}:
		return plainSlice(t)
	default:
		return v
	}
}

func plainMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = plain(v)
	}
	return out
}

func plainSlice(s []interface{}) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = plain(v)
	}
	return out
}

// bsonValue returns value the way the Mongo driver hands it back after a
// write and a read, detached from the caller's memory.
func bsonValue(value interface{}) (interface{}, error) {
	data, err := bsonData(bson.M{"v": value})
	if err != nil {
		return nil, err
	}
	return data["v"], nil
}

func bsonData(data bson.M) (bson.M, error) {
	if data == nil {
		return bson.M{}, nil
	}

	raw, err := bson.Marshal(data)
	if err != nil {
		return nil, err
	}

	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return bson.M(plainMap(out)), nil
}

// validateKey rejects keys that cannot be addressed as sessionData.<key>.
func validateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", models.ErrInvalidKey)
	case strings.HasPrefix(key, "$"):
		return fmt.Errorf("%w: %q starts with '$'", models.ErrInvalidKey, key)
	case strings.ContainsAny(key, ".\x00"):
		return fmt.Errorf("%w: %q contains '.' or NUL", models.ErrInvalidKey, key)
	}
	return nil
}

func dataPath(key string) string {
	return fieldSessionData + "." + key
}
