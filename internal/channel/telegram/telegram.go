// Package telegram adapts the Telegram Bot API (long polling) to the
// channel.Channel contract: it converts telego.Update values into
// model.IncomingMessage and lets Send reply through SendMessage. It carries
// none of the streaming-preview, reaction, or pairing UI the richer
// original bot supports; authorization against the router's own allowlist
// happens downstream.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/cianaparrot/cianaparrot/internal/channel"
	"github.com/cianaparrot/cianaparrot/internal/config"
	"github.com/cianaparrot/cianaparrot/internal/model"
)

const downloadSizeLimit = 20 << 20 // 20 MiB, matching Telegram's own bot-API file cap

// Channel is a Telegram long-polling adapter.
type Channel struct {
	bot     *telego.Bot
	cfg     config.TelegramConfig
	handler channel.MessageHandler
	log     *slog.Logger

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New constructs a Channel from configuration. The bot token must be set.
func New(cfg config.TelegramConfig, log *slog.Logger) (*Channel, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token must not be empty")
	}
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &Channel{bot: bot, cfg: cfg, log: log}, nil
}

// Name implements channel.Channel.
func (c *Channel) Name() string { return "telegram" }

// SetHandler implements channel.Channel.
func (c *Channel) SetHandler(h channel.MessageHandler) { c.handler = h }

// Start begins long-polling for updates. It returns once polling is
// confirmed, handing further delivery to a background goroutine.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("telegram: start long polling: %w", err)
	}

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil {
					c.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()

	c.log.Info("telegram channel started")
	return nil
}

// Stop cancels polling and waits (bounded) for the dispatch goroutine.
func (c *Channel) Stop() error {
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			c.log.Warn("telegram channel: polling goroutine did not exit in time")
		}
	}
	return nil
}

// Send implements channel.Channel. notify=false (a scheduler-originated
// result) delivers without ringing or popping a notification banner.
func (c *Channel) Send(ctx context.Context, chatID, text string, notify bool) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	msg := tu.Message(tu.ID(id), text)
	msg.DisableNotification = !notify
	_, err = c.bot.SendMessage(ctx, msg)
	return err
}

func (c *Channel) handleMessage(ctx context.Context, msg *telego.Message) {
	if c.handler == nil || msg.From == nil {
		return
	}
	if msg.Text == "" && msg.Caption == "" && msg.Photo == nil {
		return // service message or unsupported media, no text/caption/photo to frame
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	isPrivate := msg.Chat.Type == "private"
	in := model.IncomingMessage{
		Channel:   "telegram",
		ChatID:    fmt.Sprintf("%d", msg.Chat.ID),
		UserID:    fmt.Sprintf("%d", msg.From.ID),
		UserName:  msg.From.Username,
		Text:      text,
		IsPrivate: isPrivate,
		MessageID: fmt.Sprintf("%d", msg.MessageID),
	}
	if in.UserName == "" {
		in.UserName = msg.From.FirstName
	}

	if len(msg.Photo) > 0 {
		largest := msg.Photo[len(msg.Photo)-1]
		if b64, mime, err := c.downloadPhoto(ctx, largest.FileID); err == nil {
			in.ImageBase64 = b64
			in.ImageMimeType = mime
		} else {
			c.log.Warn("telegram: photo download failed", "error", err)
		}
	}

	c.handler(ctx, in)
}

func (c *Channel) downloadPhoto(ctx context.Context, fileID string) (base64Data, mimeType string, err error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", "", fmt.Errorf("telegram: get file: %w", err)
	}
	if file.FileSize > downloadSizeLimit {
		return "", "", fmt.Errorf("telegram: file exceeds %d bytes", downloadSizeLimit)
	}

	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.cfg.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	return encodeBody(resp.Body, downloadSizeLimit, mimeFromPath(file.FilePath))
}
