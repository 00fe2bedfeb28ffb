package dependency

import (
	"session-store-svc/src/clients"
	"session-store-svc/src/internal/cache"
	"session-store-svc/src/internal/config"
	"session-store-svc/src/internal/events"
	"session-store-svc/src/internal/session"

	"github.com/gin-gonic/gin"
)

// Manager holds the wired components of the service. Mongodb, Redis and
// RabbitMQ are nil when the configuration does not use them.
type Manager struct {
	Router         *gin.Engine
	Config         *config.Configuration
	Mongodb        *clients.MongoDB
	Redis          *clients.RedisClient
	RabbitMQ       *clients.RabbitMQ
	SessionRepo    session.Repository
	SessionStore   *session.Store
	SessionHandler session.Handler
	Collector      *session.Collector
	CacheService   cache.Service
	Publisher      *events.Publisher
}

func NewDependencyManager(router *gin.Engine,
	mongodb *clients.MongoDB,
	redisClient *clients.RedisClient,
	rabbitMQ *clients.RabbitMQ,
	cfg *config.Configuration) *Manager {
	var sessionRepo session.Repository
	if mongodb != nil {
		sessionRepo = session.NewMongoRepository(mongodb)
	} else {
		sessionRepo = session.NewMemoryRepository()
	}

	var opts []session.Option

	var cacheService cache.Service
	if redisClient != nil {
		cacheService = cache.NewCacheService(redisClient.Client, cfg)
		opts = append(opts, session.WithCache(cacheService))
	}

	var publisher *events.Publisher
	if rabbitMQ != nil {
		publisher = events.NewPublisher(cfg, rabbitMQ.Channel)
		opts = append(opts, session.WithPublisher(publisher))
	}

	sessionStore := session.NewStore(sessionRepo, &cfg.Session, opts...)

	return &Manager{
		Router:         router,
		Config:         cfg,
		Mongodb:        mongodb,
		Redis:          redisClient,
		RabbitMQ:       rabbitMQ,
		SessionRepo:    sessionRepo,
		SessionStore:   sessionStore,
		SessionHandler: session.NewHandler(cfg, sessionStore),
		Collector:      session.NewCollector(sessionStore, cfg.Session.GCInterval()),
		CacheService:   cacheService,
		Publisher:      publisher,
	}
}
