package models

import "errors"

var (
	ErrRedisConnection = errors.New("redis connection error")
	ErrRedisGet        = errors.New("redis get error")
	ErrRedisSet        = errors.New("redis set error")
	ErrRedisDelete     = errors.New("redis delete error")
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionNotStarted = errors.New("session not started")
	ErrSessionCreating   = errors.New("error creating session")
	ErrSessionUpdating   = errors.New("error updating session")
	ErrSessionDeleting   = errors.New("error deleting session")
	ErrInvalidKey        = errors.New("invalid session key")
)

var (
	ErrDatabaseConnection = errors.New("database connection error")
	ErrDatabaseQuery      = errors.New("database query error")
	ErrDatabaseInsert     = errors.New("database insert error")
	ErrDatabaseUpdate     = errors.New("database update error")
	ErrDatabaseDelete     = errors.New("database delete error")
	ErrDuplicateRecord    = errors.New("duplicate record")
)

var (
	ErrQueueConnection = errors.New("queue connection error")
	ErrQueuePublish    = errors.New("queue publish error")
)
