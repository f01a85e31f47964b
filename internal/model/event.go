package model

import (
	"encoding/json"
	"time"
)

// 客户端 -> 服务端事件
const (
	EventJoinChat       = "join_chat"
	EventSendMessage    = "send_message"
	EventTypingStart    = "typing_start"
	EventTypingStop     = "typing_stop"
	EventGetChatHistory = "get_chat_history"
	EventHeartbeat      = "HEARTBEAT"
)

// 服务端 -> 客户端事件
const (
	EventJoined         = "joined"
	EventReceiveMessage = "receive_message"
	EventChatHistory    = "chat_history"
	EventUserTyping     = "user_typing"
	EventChatError      = "chat_error"
)

// Envelope WebSocket 消息信封
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OutboundEvent 服务端推送事件
type OutboundEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// JoinPayload join_chat 载荷
type JoinPayload struct {
	UserID int64 `json:"userId"`
}

// SendPayload send_message 载荷
type SendPayload struct {
	UserID  int64           `json:"userId"`
	Message string          `json:"message"`
	Context json.RawMessage `json:"context"`
}

// TurnPayload receive_message 载荷
type TurnPayload struct {
	ID        int64           `json:"id,omitempty"`
	Text      string          `json:"text"`
	IsBot     bool            `json:"isBot"`
	Timestamp time.Time       `json:"timestamp"`
	Context   json.RawMessage `json:"context,omitempty"`
	IsWelcome bool            `json:"isWelcome,omitempty"`
}

// NewTurnPayload 由持久化消息构造推送载荷
func NewTurnPayload(msg *ChatMessage) TurnPayload {
	payload := TurnPayload{
		ID:        msg.ID,
		Text:      msg.Message,
		IsBot:     msg.IsBot(),
		Timestamp: msg.CreatedAt,
	}
	if len(msg.Context) > 0 {
		payload.Context = json.RawMessage(msg.Context)
	}
	return payload
}

// HistoryPayload chat_history 载荷
type HistoryPayload struct {
	Messages []ChatMessage `json:"messages"`
}

// TypingPayload user_typing 载荷
type TypingPayload struct {
	Typing bool `json:"typing"`
}

// ErrorPayload chat_error 载荷
type ErrorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
