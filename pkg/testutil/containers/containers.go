//go:build integration

// Package containers starts the postgres, redis and kafka dependencies for
// integration suites. Each container is started once per test binary and
// shared by every suite in the package.
package containers

import (
	"sync"
	"testing"
)

// shared starts a container on first use and hands the same instance to
// every later caller.
type shared[T any] struct {
	mu    sync.Mutex
	value *T
}

func (s *shared[T]) get(t *testing.T, start func(*testing.T) *T) *T {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == nil {
		s.value = start(t)
	}
	return s.value
}

// Manager owns the shared containers of one test binary.
type Manager struct {
	postgres shared[PostgresContainer]
	redis    shared[RedisContainer]
	kafka    shared[KafkaContainer]
}

var manager = &Manager{}

// GetManager returns the package-wide manager.
func GetManager() *Manager {
	return manager
}

// GetPostgres returns a migrated Postgres container.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, NewPostgresContainer)
}

// GetRedis returns a Redis container.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, NewRedisContainer)
}

// GetKafka returns a Kafka-compatible broker.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, NewKafkaContainer)
}
