package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/utils"
)

var ErrNotFound = errors.New("session not found")

const keyPrefix = "session:"

type KeyValue interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
}

// Store keeps per-chat dialog state; a session expires after cfg.SessionExpiration of inactivity.
type Store struct {
	kv         KeyValue
	expiration time.Duration
}

func New(kv KeyValue, cfg *config.Config) *Store {
	return &Store{kv: kv, expiration: cfg.SessionExpiration}
}

func (s *Store) GetSession(ctx context.Context, key string) (model.Session, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	raw, err := s.kv.Get(ctx, keyPrefix+key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, err
	}

	chatSession := model.Session{}
	err = json.Unmarshal(raw, &chatSession)
	if err != nil {
		slog.Error("can't unmarshal session", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return model.Session{}, err
	}

	return chatSession, nil
}

func (s *Store) SetSession(ctx context.Context, key string, chatSession model.Session) error {
	raw, err := json.Marshal(chatSession)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, keyPrefix+key, raw, s.expiration)
}
