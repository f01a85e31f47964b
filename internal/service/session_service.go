package service

import (
	"context"
	"sync"
	"time"

	"github.com/supportbot/storebot-go/internal/config"
	"github.com/supportbot/storebot-go/internal/metrics"
	"github.com/supportbot/storebot-go/internal/model"
	"go.uber.org/zap"
)

// SessionService 会话管理服务：连接注册、按用户分组的频道、心跳检测
type SessionService struct {
	sessions map[string]*model.UserSession           // sessionId -> session
	channels map[int64]map[string]*model.UserSession // userId -> 已加入频道的会话
	joined   map[string]int64                        // sessionId -> 已加入的频道
	mu       sync.RWMutex                            // 读写锁保护
	cfg      config.WebSocketConfig
	logger   *zap.Logger
}

// NewSessionService 创建会话管理服务
func NewSessionService(cfg config.WebSocketConfig, logger *zap.Logger) *SessionService {
	return &SessionService{
		sessions: make(map[string]*model.UserSession),
		channels: make(map[int64]map[string]*model.UserSession),
		joined:   make(map[string]int64),
		cfg:      cfg,
		logger:   logger,
	}
}

// Register 注册新连接（尚未加入频道）
func (s *SessionService) Register(session *model.UserSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.LastHeartbeat = time.Now()
	s.sessions[session.SessionID] = session
	metrics.SocketSessions.Set(float64(len(s.sessions)))

	s.logger.Info("用户会话注册成功",
		zap.Int64("userId", session.UserID),
		zap.String("sessionId", session.SessionID),
		zap.String("clientIp", session.ClientIP))
}

// Join 会话加入用户频道，同一会话重复加入时切换频道
func (s *SessionService) Join(sessionID string, owner int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrUserOffline
	}

	if prev, ok := s.joined[sessionID]; ok {
		s.removeFromChannel(prev, sessionID)
	}

	channel, ok := s.channels[owner]
	if !ok {
		channel = make(map[string]*model.UserSession)
		s.channels[owner] = channel
	}
	channel[sessionID] = session
	s.joined[sessionID] = owner

	s.logger.Info("用户加入聊天频道",
		zap.Int64("userId", owner),
		zap.String("sessionId", sessionID),
		zap.Int("channelSize", len(channel)))
	return nil
}

// JoinedChannel 返回会话所在频道
func (s *SessionService) JoinedChannel(sessionID string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.joined[sessionID]
	return owner, ok
}

// Leave 移除会话
func (s *SessionService) Leave(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(sessionID)
}

// removeLocked 调用方需持有写锁
func (s *SessionService) removeLocked(sessionID string) *model.UserSession {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if owner, ok := s.joined[sessionID]; ok {
		s.removeFromChannel(owner, sessionID)
		delete(s.joined, sessionID)
	}
	delete(s.sessions, sessionID)
	metrics.SocketSessions.Set(float64(len(s.sessions)))

	s.logger.Info("用户会话已移除",
		zap.Int64("userId", session.UserID),
		zap.String("sessionId", sessionID))
	return session
}

func (s *SessionService) removeFromChannel(owner int64, sessionID string) {
	channel, ok := s.channels[owner]
	if !ok {
		return
	}
	delete(channel, sessionID)
	if len(channel) == 0 {
		delete(s.channels, owner)
	}
}

// Publish 向频道内所有会话推送事件，exceptSessionID 非空时跳过该会话，返回成功推送数
func (s *SessionService) Publish(owner int64, event model.OutboundEvent, exceptSessionID string) int {
	s.mu.RLock()
	targets := make([]*model.UserSession, 0, len(s.channels[owner]))
	for id, session := range s.channels[owner] {
		if id != exceptSessionID {
			targets = append(targets, session)
		}
	}
	s.mu.RUnlock()

	delivered := 0
	for _, session := range targets {
		if err := session.WriteMessage(event); err != nil {
			s.logger.Error("消息推送失败",
				zap.Int64("userId", owner),
				zap.String("sessionId", session.SessionID),
				zap.String("event", event.Type),
				zap.Error(err))
			// 异步清理无效连接
			go s.Leave(session.SessionID)
			continue
		}
		delivered++
	}

	s.logger.Debug("频道消息已推送",
		zap.Int64("userId", owner),
		zap.String("event", event.Type),
		zap.Int("delivered", delivered))
	return delivered
}

// SendToSession 向单个会话推送事件
func (s *SessionService) SendToSession(sessionID string, event model.OutboundEvent) error {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return ErrUserOffline
	}

	if err := session.WriteMessage(event); err != nil {
		s.logger.Error("消息发送失败",
			zap.String("sessionId", sessionID),
			zap.Error(err))
		go s.Leave(sessionID)
		return err
	}
	return nil
}

// UpdateHeartbeat 更新心跳时间
func (s *SessionService) UpdateHeartbeat(sessionID string) bool {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return false
	}

	session.UpdateHeartbeat()
	s.logger.Debug("心跳已更新", zap.String("sessionId", sessionID))
	return true
}

// OnlineCount 在线连接数
func (s *SessionService) OnlineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ChannelSize 用户频道内的会话数
func (s *SessionService) ChannelSize(owner int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels[owner])
}

// Run 心跳检测器，ctx 取消后关闭全部连接并退出
func (s *SessionService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return nil
		case now := <-ticker.C:
			s.checkHeartbeats(now)
		}
	}
}

// checkHeartbeats 超时未心跳的会话累计丢失次数，达到上限后关闭
func (s *SessionService) checkHeartbeats(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sessionID, session := range s.sessions {
		if session.SinceHeartbeat(now) <= s.cfg.HeartbeatTimeout {
			continue
		}

		missed := session.IncrementMissedBeats()
		if session.ShouldBeCleaned(s.cfg.MaxMissedBeats) {
			s.logger.Info("清理无效会话",
				zap.Int64("userId", session.UserID),
				zap.String("sessionId", sessionID),
				zap.Int("missedBeats", missed))
			session.Conn.Close()
			s.removeLocked(sessionID)
		} else {
			s.logger.Warn("用户心跳丢失",
				zap.Int64("userId", session.UserID),
				zap.String("sessionId", sessionID),
				zap.Int("missedBeats", missed))
		}
	}
}

func (s *SessionService) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sessionID, session := range s.sessions {
		session.Conn.Close()
		s.removeLocked(sessionID)
	}
}
