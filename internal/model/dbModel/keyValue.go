package dbModel

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// KeyValue is a row of kv_store.
type KeyValue struct {
	Key       string             `db:"key"`
	Value     []byte             `db:"value"`
	ExpiresAt pgtype.Timestamptz `db:"expires_at"`
}
