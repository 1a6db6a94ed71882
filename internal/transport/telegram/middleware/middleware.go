package middleware

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"
)

func Logger() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			now := time.Now()

			rqID := uuid.NewString()
			c.Set("rqID", rqID)

			var chatID int64
			if chat := c.Chat(); chat != nil {
				chatID = chat.ID
			}

			slog.Info(
				"start request",
				slog.String("rqID", rqID),
				slog.Int64("chatID", chatID),
				slog.String("text", c.Text()),
			)

			defer func() {
				slog.Info(
					"request finished",
					slog.String("rqID", rqID),
					slog.String("request duration", fmt.Sprintf("%.2fs", time.Since(now).Seconds())),
				)
			}()

			return next(c)
		}
	}
}

// PrivateOnly drops updates coming from groups and channels.
func PrivateOnly() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if chat := c.Chat(); chat != nil && chat.Type != tele.ChatPrivate {
				slog.Debug("ignored non-private chat", slog.Int64("chatID", chat.ID), slog.String("type", string(chat.Type)))
				return nil
			}
			return next(c)
		}
	}
}

// AllowedChats drops updates from chats that are not listed.
func AllowedChats(chatIDs []int64) tele.MiddlewareFunc {
	allowed := make(map[int64]bool, len(chatIDs))
	for _, id := range chatIDs {
		allowed[id] = true
	}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			if chat == nil || !allowed[chat.ID] {
				var chatID int64
				if chat != nil {
					chatID = chat.ID
				}
				rqID, _ := c.Get("rqID").(string)
				slog.Warn("ignored update from a chat that is not allowed", slog.String("rqID", rqID), slog.Int64("chatID", chatID))
				return nil
			}
			return next(c)
		}
	}
}
