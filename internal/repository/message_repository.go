package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/supportbot/storebot-go/internal/model"
	"gorm.io/gorm"
)

// MessageRepository 聊天记录（仅追加，按用户整体删除）
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建聊天记录仓储
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append 写入一条消息
func (r *MessageRepository) Append(ctx context.Context, msg *model.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("写入聊天记录失败: %w", err)
	}
	return nil
}

// ListByOwner 按时间升序返回，limit > 0 时只返回最近 limit 条
func (r *MessageRepository) ListByOwner(ctx context.Context, owner int64, limit int) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	q := r.db.WithContext(ctx).Where("user_id = ?", owner)

	if limit <= 0 {
		if err := q.Order("created_at ASC, id ASC").Find(&messages).Error; err != nil {
			return nil, fmt.Errorf("查询聊天记录失败: %w", err)
		}
		return messages, nil
	}

	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("查询聊天记录失败: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CountSince 统计 since 之后的消息数
func (r *MessageRepository) CountSince(ctx context.Context, owner int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ChatMessage{}).
		Where("user_id = ? AND created_at > ?", owner, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计聊天记录失败: %w", err)
	}
	return count, nil
}

// DeleteByOwner 删除用户全部聊天记录
func (r *MessageRepository) DeleteByOwner(ctx context.Context, owner int64) (int64, error) {
	result := r.db.WithContext(ctx).Where("user_id = ?", owner).Delete(&model.ChatMessage{})
	if result.Error != nil {
		return 0, fmt.Errorf("删除聊天记录失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// LatestAt 用户最后一条消息的时间，没有消息时返回零值
func (r *MessageRepository) LatestAt(ctx context.Context, owner int64) (time.Time, error) {
	var latest []model.ChatMessage
	err := r.db.WithContext(ctx).
		Select("created_at").
		Where("user_id = ?", owner).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&latest).Error
	if err != nil {
		return time.Time{}, fmt.Errorf("查询最近消息时间失败: %w", err)
	}
	if len(latest) == 0 {
		return time.Time{}, nil
	}
	return latest[0].CreatedAt, nil
}
