package auction

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gavel/models"
)

// Messenger 是站內訊息的協作者，所有操作都必須能參與呼叫端的交易
type Messenger interface {
	ConversationIDForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (uuid.UUID, error)
	InsertSystemMessage(ctx context.Context, tx *gorm.DB, userID uuid.UUID, content string, conversationID *uuid.UUID) (*models.Message, error)
}

func winnerMessage(auction *models.Auction, amount int64, reason models.ClosedReason) string {
	if reason == models.ClosedReasonBuyNow {
		return fmt.Sprintf("Congratulations! You bought \"%s\" with buy-it-now for %d.", auction.Title, amount)
	}
	return fmt.Sprintf("Congratulations! You won the auction \"%s\" with a final bid of %d.", auction.Title, amount)
}

// deliverWinnerMessage 在交易中寫入得標者的系統訊息
func deliverWinnerMessage(ctx context.Context, tx *gorm.DB, messenger Messenger, winnerID uuid.UUID, content string) (*models.Message, error) {
	const op = "deliverWinnerMessage"
	conversationID, err := messenger.ConversationIDForUser(ctx, tx, winnerID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to get conversation, err=%w", op, err)
	}
	message, err := messenger.InsertSystemMessage(ctx, tx, winnerID, content, &conversationID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to insert system message, err=%w", op, err)
	}
	return message, nil
}
