package clients

import (
	"context"
	"time"

	"session-store-svc/src/internal/config"
	"session-store-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var log = logrus.StandardLogger()

type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
	conn     *config.Connection
}

// NewMongoDB connects to the named connection and pings the primary.
func NewMongoDB(conn *config.Connection, timeoutSeconds int) (*MongoDB, error) {
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.WithField("dbname", conn.DbName).Info("Connecting to MongoDB...")
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conn.Url).SetTimeout(timeout))
	if err != nil {
		log.WithError(err).Error("Failed to connect to MongoDB")
		return nil, models.ErrDatabaseConnection
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		log.WithError(err).Error("Failed to ping MongoDB")
		_ = client.Disconnect(context.Background())
		return nil, models.ErrDatabaseConnection
	}

	log.WithField("dbname", conn.DbName).Info("Connected to MongoDB")

	return &MongoDB{
		Client:   client,
		Database: client.Database(conn.DbName),
		conn:     conn,
	}, nil
}

// Collection returns the session collection configured for this connection.
func (m *MongoDB) Collection() *mongo.Collection {
	return m.Database.Collection(m.conn.Collection)
}

func (m *MongoDB) Close(ctx context.Context) error {
	if m.Client == nil {
		return nil
	}
	if err := m.Client.Disconnect(ctx); err != nil {
		log.WithError(err).Error("Failed to disconnect from MongoDB")
		return err
	}
	log.Info("MongoDB connection closed")
	return nil
}
