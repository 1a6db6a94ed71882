package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/model/dbModel"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/jmoiron/sqlx"
)

// Postgres is a key-value backend on the kv_store table.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (r *Postgres) Get(ctx context.Context, key string) (value []byte, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.Get"
	query := `
		SELECT key, value, expires_at
		FROM kv_store
		WHERE key = $1
		AND (expires_at IS NULL OR expires_at > now())
		`

	slog.Debug("Get start", slog.String("rqID", rqID), slog.String("op", op), slog.String("key", key))
	defer func() {
		if err != nil && !errors.Is(err, ErrNotFound) {
			slog.Error("Get failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("Get completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	row := dbModel.KeyValue{}
	err = r.db.QueryRowxContext(ctx, query, key).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return row.Value, nil
}

func (r *Postgres) Set(ctx context.Context, key string, value []byte, expiration time.Duration) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.Set"
	query := `
		INSERT INTO kv_store (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
		`

	slog.Debug("Set start", slog.String("rqID", rqID), slog.String("op", op), slog.String("key", key), slog.Int("bytes", len(value)))
	defer func() {
		if err != nil {
			slog.Error("Set failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("Set completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	expiresAt := pgtype.Timestamptz{}
	if expiration > 0 {
		expiresAt = pgtype.Timestamptz{Time: time.Now().Add(expiration), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query, key, value, expiresAt)
	return err
}

func (r *Postgres) Delete(ctx context.Context, key string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.Delete"
	query := `DELETE FROM kv_store WHERE key = $1`

	slog.Debug("Delete start", slog.String("rqID", rqID), slog.String("op", op), slog.String("key", key))
	defer func() {
		if err != nil {
			slog.Error("Delete failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("Delete completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.db.ExecContext(ctx, query, key)
	return err
}

// DeleteExpired removes rows whose expiration has passed.
func (r *Postgres) DeleteExpired(ctx context.Context) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.DeleteExpired"
	query := `DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at <= now()`

	slog.Debug("DeleteExpired start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("DeleteExpired failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return err
	}

	deleted, _ := res.RowsAffected()
	slog.Debug("DeleteExpired completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("deleted", deleted))

	return nil
}
