package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	DriverMongoDB = "mongodb"
	DriverMemory  = "memory"

	SaveHandlerUser = "user"

	DefaultConnection     = "default"
	DefaultSessionTimeout = 1200
	DefaultGCInterval     = 600
)

var sessionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// SessionSettings configures the session store and the behaviour flags
// the host's session subsystem expects to be applied before start.
type SessionSettings struct {
	Driver            string `mapstructure:"driver"`
	Connection        string `mapstructure:"connection"`
	Timeout           int    `mapstructure:"timeout"`
	GCIntervalSeconds int    `mapstructure:"gc-interval-seconds"`
	UseTransSid       bool   `mapstructure:"use-trans-sid"`
	UseCookies        *bool  `mapstructure:"use-cookies"`
	SaveHandler       string `mapstructure:"save-handler"`
	Name              string `mapstructure:"name"`
}

// ConfigError reports a session setting that could not be applied.
type ConfigError struct {
	Setting string
	Value   string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("could not initialize the session: setting %q (%q): %s", e.Setting, e.Value, e.Reason)
}

// Apply fills in defaults and validates every setting against cfg.
func (s *SessionSettings) Apply(cfg *Configuration) error {
	if s.Driver == "" {
		s.Driver = DriverMongoDB
	}
	if s.Connection == "" {
		s.Connection = DefaultConnection
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultSessionTimeout
	}
	if s.GCIntervalSeconds == 0 {
		s.GCIntervalSeconds = DefaultGCInterval
	}
	if s.SaveHandler == "" {
		s.SaveHandler = SaveHandlerUser
	}
	if s.UseCookies == nil {
		useCookies := true
		s.UseCookies = &useCookies
	}
	if s.Name == "" {
		s.Name = cfg.App.Name
	}

	switch s.Driver {
	case DriverMongoDB:
		conn, ok := cfg.Database.Connections[s.Connection]
		if !ok {
			return &ConfigError{Setting: "connection", Value: s.Connection, Reason: "no such database connection"}
		}
		if conn.Url == "" || conn.DbName == "" || conn.Collection == "" {
			return &ConfigError{Setting: "connection", Value: s.Connection, Reason: "url, dbname and collection are required"}
		}
	case DriverMemory:
	default:
		return &ConfigError{Setting: "driver", Value: s.Driver, Reason: "unsupported driver"}
	}

	if s.Timeout < 0 {
		return &ConfigError{Setting: "timeout", Value: strconv.Itoa(s.Timeout), Reason: "must be positive"}
	}
	if s.GCIntervalSeconds < 0 {
		return &ConfigError{Setting: "gc-interval-seconds", Value: strconv.Itoa(s.GCIntervalSeconds), Reason: "must be positive"}
	}
	if s.SaveHandler != SaveHandlerUser {
		return &ConfigError{Setting: "save-handler", Value: s.SaveHandler, Reason: "only the user save handler is supported"}
	}
	if s.UseTransSid && !*s.UseCookies {
		// nothing would carry the id between requests
		return &ConfigError{Setting: "use-trans-sid", Value: "true", Reason: "trans-sid transport is not supported without cookies"}
	}
	if s.Name == "" {
		return &ConfigError{Setting: "name", Value: s.Name, Reason: "session name is empty and no application name is set"}
	}
	if !sessionNamePattern.MatchString(s.Name) {
		return &ConfigError{Setting: "name", Value: s.Name, Reason: "only letters, digits, '_' and '-' are allowed"}
	}
	if _, err := strconv.Atoi(s.Name); err == nil {
		return &ConfigError{Setting: "name", Value: s.Name, Reason: "must contain at least one letter"}
	}

	return nil
}

func (s *SessionSettings) connectionName() string {
	if s.Connection == "" {
		return DefaultConnection
	}
	return s.Connection
}

// TimeoutDuration is the lifetime added to now for a new session document.
func (s *SessionSettings) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

func (s *SessionSettings) GCInterval() time.Duration {
	return time.Duration(s.GCIntervalSeconds) * time.Second
}
