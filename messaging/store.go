package messaging

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gavel/models"
)

// Store 實作系統訊息的寫入，每位使用者有一個系統對話
// 所有方法都使用呼叫端傳入的交易
type Store struct {
	htmlChecker *bluemonday.Policy
}

func NewStore() *Store {
	return &Store{htmlChecker: bluemonday.StrictPolicy()}
}

// ConversationIDForUser 取得使用者的系統對話，不存在時建立
func (s *Store) ConversationIDForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (uuid.UUID, error) {
	const op = "ConversationIDForUser"
	conversation := models.Conversation{UserID: userID}
	// 並發建立時以唯一索引為準
	if result := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&conversation); result.Error != nil {
		return uuid.Nil, fmt.Errorf("[%s] Fail to create conversation, err=%w", op, result.Error)
	}
	existing := models.Conversation{}
	if result := tx.WithContext(ctx).Where("user_id = ?", userID).First(&existing); result.Error != nil {
		return uuid.Nil, fmt.Errorf("[%s] Fail to find conversation, err=%w", op, result.Error)
	}
	return existing.ID, nil
}

// InsertSystemMessage 寫入一則系統訊息，conversationID 為 nil 時自動找出使用者的對話
func (s *Store) InsertSystemMessage(ctx context.Context, tx *gorm.DB, userID uuid.UUID, content string, conversationID *uuid.UUID) (*models.Message, error) {
	const op = "InsertSystemMessage"
	if conversationID == nil {
		id, err := s.ConversationIDForUser(ctx, tx, userID)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to resolve conversation, err=%w", op, err)
		}
		conversationID = &id
	}
	// 訊息以純文字儲存，移除標籤後還原被跳脫的字元
	content = html.UnescapeString(s.htmlChecker.Sanitize(content))
	if content == "" {
		return nil, fmt.Errorf("[%s] %w", op, ErrEmptyContent)
	}
	message := models.Message{
		ConversationID: *conversationID,
		RecipientID:    userID,
		Content:        content,
		IsSystem:       true,
	}
	if result := tx.WithContext(ctx).Create(&message); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to create message, err=%w", op, result.Error)
	}
	return &message, nil
}

var ErrEmptyContent = errors.New("message content is empty")
