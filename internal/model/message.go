package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Origin 消息来源
type Origin string

const (
	OriginUser Origin = "user"
	OriginBot  Origin = "bot"
)

// ChatMessage 聊天消息（一条持久化的对话轮次）
type ChatMessage struct {
	ID        int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    int64          `json:"user_id" gorm:"not null;index:idx_chat_messages_user_created,priority:1"`
	Message   string         `json:"message" gorm:"type:text;not null"`
	Response  *string        `json:"response" gorm:"type:text"`
	Origin    Origin         `json:"origin" gorm:"type:varchar(8);not null"`
	Context   datatypes.JSON `json:"context,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null;index:idx_chat_messages_user_created,priority:2"`
}

// TableName 表名
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// IsBot 是否为机器人回复
func (m ChatMessage) IsBot() bool {
	return m.Origin == OriginBot
}

// ExportedMessage 导出格式的消息
type ExportedMessage struct {
	Timestamp   time.Time `json:"timestamp"`
	UserMessage string    `json:"user_message"`
	BotResponse *string   `json:"bot_response"`
}

// ChatExport 聊天记录导出
type ChatExport struct {
	Format       string            `json:"format"`
	GeneratedAt  time.Time         `json:"generated_at"`
	MessageCount int               `json:"message_count"`
	Messages     []ExportedMessage `json:"messages"`
}

// SendRequest 发送消息请求
type SendRequest struct {
	Message string `json:"message"`
	// Context 任意 JSON 值，原样随消息落库
	Context json.RawMessage `json:"context"`
}

// SendResponse 发送消息响应
type SendResponse struct {
	Success     bool         `json:"success"`
	UserMessage *ChatMessage `json:"userMessage"`
	BotMessage  *ChatMessage `json:"botMessage"`
	Timestamp   time.Time    `json:"timestamp"`
}
