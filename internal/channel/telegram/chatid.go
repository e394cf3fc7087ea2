package telegram

import (
	"fmt"
	"strconv"
)

// parseChatID converts the router's string chat-id back to Telegram's
// native int64 chat id.
func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	return id, nil
}
