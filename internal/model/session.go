package model

import (
	"sync"
	"time"
)

// Conn 会话底层连接（*websocket.Conn 满足该接口）
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// UserSession 用户会话（一条 WebSocket 连接）
type UserSession struct {
	UserID        int64
	Username      string
	Conn          Conn
	SessionID     string
	ClientIP      string
	LastHeartbeat time.Time
	MissedBeats   int
	mu            sync.RWMutex // 保护会话字段
	writeMu       sync.Mutex   // 串行化连接写入
}

// UpdateHeartbeat 更新心跳时间
func (s *UserSession) UpdateHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastHeartbeat = time.Now()
	s.MissedBeats = 0
}

// SinceHeartbeat 距上次心跳的时长
func (s *UserSession) SinceHeartbeat(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.LastHeartbeat)
}

// IncrementMissedBeats 增加丢失心跳次数，返回累计次数
func (s *UserSession) IncrementMissedBeats() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MissedBeats++
	return s.MissedBeats
}

// ShouldBeCleaned 判断是否应该清理
func (s *UserSession) ShouldBeCleaned(maxMissed int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.MissedBeats >= maxMissed
}

// WriteMessage 向 WebSocket 写入消息（线程安全）
func (s *UserSession) WriteMessage(message interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.Conn.WriteJSON(message)
}
