package engine

import (
	"context"
	"fmt"

	"github.com/mailwatch/mailwatch/internal/model"
)

// buildExtended assembles an extended-mode payload: the full account
// listing, a summary of every watched folder, and the triggering message
// (nil for a start event).
func (e *Engine) buildExtended(
	ctx context.Context,
	snap *snapshot,
	event model.Event,
	msg *model.Message,
) (*model.ExtendedPayload, error) {
	accounts, err := e.client.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	summaries := make([]model.FolderSummary, 0, len(snap.folders))
	for _, folder := range snap.folders {
		info, err := e.client.FolderInfo(ctx, folder)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, model.FolderSummary{
			AccountID:          folder.AccountID,
			Favorite:           folder.Favorite,
			Name:               folder.Name,
			Path:               folder.Path,
			Type:               folder.Type,
			TotalMessageCount:  info.TotalMessages,
			UnreadMessageCount: info.UnreadMessages,
			SeenMessageCount:   e.seen.Count(folder.Key()),
		})
	}

	return &model.ExtendedPayload{
		Accounts: accounts,
		Folders:  summaries,
		Event:    event,
		Message:  msg,
	}, nil
}
