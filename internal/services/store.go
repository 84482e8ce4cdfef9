package services

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// SessionStore 活跃会话存储
// 会话在最后一次访问后超过TTL即被移除并释放索引
type SessionStore struct {
	cache  *gocache.Cache
	mu     sync.Mutex // 保护会话的加入与移除
	logger *logrus.Logger
}

// NewSessionStore 创建会话存储
func NewSessionStore(ttl, cleanupInterval time.Duration, logger *logrus.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	if logger == nil {
		logger = logrus.New()
	}

	store := &SessionStore{
		cache:  gocache.New(ttl, cleanupInterval),
		logger: logger,
	}
	store.cache.OnEvicted(func(id string, v interface{}) {
		s, ok := v.(*Session)
		if !ok {
			return
		}
		s.deleted.Store(true)
		s.mu.Lock()
		s.release()
		s.mu.Unlock()
		store.logger.WithField("session_id", id).Debug("Session evicted")
	})
	return store
}

// Create 加入新会话
func (st *SessionStore) Create(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cache.Set(s.ID, s, gocache.DefaultExpiration)
}

// Get 获取会话，不刷新过期时间
func (st *SessionStore) Get(id string) (*Session, bool) {
	v, ok := st.cache.Get(id)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	if !ok || s.deleted.Load() {
		return nil, false
	}
	return s, true
}

// Do 在会话上串行执行操作并刷新过期时间
// 同一会话的构建和查询不会并发执行
func (st *SessionStore) Do(id string, fn func(s *Session) error) error {
	s, ok := st.Get(id)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	if s.deleted.Load() {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	err := fn(s)
	s.mu.Unlock()

	st.mu.Lock()
	if !s.deleted.Load() {
		st.cache.Set(id, s, gocache.DefaultExpiration)
	}
	st.mu.Unlock()

	return err
}

// Delete 移除会话并释放索引
func (st *SessionStore) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	v, ok := st.cache.Get(id)
	if !ok {
		return false
	}
	if s, ok := v.(*Session); ok {
		s.deleted.Store(true)
	}
	st.cache.Delete(id)
	return true
}

// Count 返回活跃会话数量
func (st *SessionStore) Count() int {
	return st.cache.ItemCount()
}
