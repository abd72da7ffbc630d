// Файл: pkg/fsm/storage.go
// Хранилище состояний диалогов. Каждому чату соответствует одна сессия:
// имя состояния плюс JSON-карта данных (черновик документа, id служебных
// сообщений). При настроенном Redis сессии переживают рестарт процесса.
package fsm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const sessionTTL = 24 * time.Hour

// Session — снимок состояния диалога одного чата.
type Session struct {
	State string                     `json:"state"`
	Data  map[string]json.RawMessage `json:"data"`
}

func NewSession() *Session {
	return &Session{Data: make(map[string]json.RawMessage)}
}

// Get достаёт типизированное значение из данных сессии.
func (s *Session) Get(key string, out interface{}) bool {
	raw, ok := s.Data[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// Set кладёт значение в данные сессии.
func (s *Session) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка сериализации данных сессии: %w", err)
	}
	if s.Data == nil {
		s.Data = make(map[string]json.RawMessage)
	}
	s.Data[key] = raw
	return nil
}

func (s *Session) Delete(key string) {
	delete(s.Data, key)
}

type StorageInterface interface {
	Load(ctx context.Context, chatID int64) (*Session, error)
	Save(ctx context.Context, chatID int64, session *Session) error
	Clear(ctx context.Context, chatID int64) error
}

// --- РЕАЛИЗАЦИЯ НА REDIS ---

type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(client *redis.Client) StorageInterface {
	return &RedisStorage{client: client}
}

func sessionKey(chatID int64) string {
	return fmt.Sprintf("fsm:session:%d", chatID)
}

func (r *RedisStorage) Load(ctx context.Context, chatID int64) (*Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(chatID)).Result()
	if err == redis.Nil {
		return NewSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сессии из Redis: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		// Битую сессию выбрасываем и начинаем заново.
		return NewSession(), nil
	}
	if session.Data == nil {
		session.Data = make(map[string]json.RawMessage)
	}
	return &session, nil
}

func (r *RedisStorage) Save(ctx context.Context, chatID int64, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("ошибка сериализации сессии: %w", err)
	}
	return r.client.Set(ctx, sessionKey(chatID), raw, sessionTTL).Err()
}

func (r *RedisStorage) Clear(ctx context.Context, chatID int64) error {
	return r.client.Del(ctx, sessionKey(chatID)).Err()
}

// --- РЕАЛИЗАЦИЯ В ПАМЯТИ ---

// MemoryStorage используется когда Redis не настроен. Сессии живут до рестарта.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewMemoryStorage() StorageInterface {
	return &MemoryStorage{sessions: make(map[int64]*Session)}
}

func (m *MemoryStorage) Load(_ context.Context, chatID int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[chatID]
	if !ok {
		return NewSession(), nil
	}

	// Возвращаем копию, чтобы параллельные обработчики не делили одну карту.
	raw, _ := json.Marshal(session)
	var clone Session
	_ = json.Unmarshal(raw, &clone)
	if clone.Data == nil {
		clone.Data = make(map[string]json.RawMessage)
	}
	return &clone, nil
}

func (m *MemoryStorage) Save(_ context.Context, chatID int64, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("ошибка сериализации сессии: %w", err)
	}
	var clone Session
	if err := json.Unmarshal(raw, &clone); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[chatID] = &clone
	return nil
}

func (m *MemoryStorage) Clear(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
	return nil
}
