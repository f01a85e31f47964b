package model

import "time"

// Stage 会话阶段
type Stage string

const (
	StageNew               Stage = "new"
	StageGreeted           Stage = "greeted"
	StageHumanRequested    Stage = "human_requested"
	StageProductDiscussion Stage = "product_discussion"
)

// ConversationContext 用户会话上下文（仅存于内存，进程重启即丢失）
type ConversationContext struct {
	UserID       int64     `json:"userId"`
	Stage        Stage     `json:"stage"`
	LastMessage  string    `json:"lastMessage"`
	LastActivity time.Time `json:"lastActivity"`
}

// NewConversationContext 创建 new 阶段的上下文
func NewConversationContext(userID int64) ConversationContext {
	return ConversationContext{UserID: userID, Stage: StageNew}
}
