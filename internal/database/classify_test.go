package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	mirrorerrors "github.com/customeros/mailmirror/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want mirrorerrors.Kind
	}{
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, mirrorerrors.KindBlocked},
		{"sqlite locked wrapped", errors.Wrap(sqlite3.Error{Code: sqlite3.ErrLocked}, "open"), mirrorerrors.KindBlocked},
		{"sqlite abort", sqlite3.Error{Code: sqlite3.ErrAbort}, mirrorerrors.KindAbort},
		{"sqlite full", sqlite3.Error{Code: sqlite3.ErrFull}, mirrorerrors.KindQuota},
		{"sqlite not a db", sqlite3.Error{Code: sqlite3.ErrNotADB}, mirrorerrors.KindVersion},
		{"sqlite constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, mirrorerrors.KindConstraint},
		{"pg lock", &pgconn.PgError{Code: "55P03"}, mirrorerrors.KindBlocked},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, mirrorerrors.KindAbort},
		{"pg disk full", &pgconn.PgError{Code: "53100"}, mirrorerrors.KindQuota},
		{"pg undefined table", &pgconn.PgError{Code: "42P01"}, mirrorerrors.KindNotFound},
		{"pg admin shutdown", &pgconn.PgError{Code: "57P01"}, mirrorerrors.KindClosed},
		{"pg unique", &pgconn.PgError{Code: "23505"}, mirrorerrors.KindConstraint},
		{"cancelled", context.Canceled, mirrorerrors.KindCancelled},
		{"deadline", context.DeadlineExceeded, mirrorerrors.KindBlockedTimeout},
		{"record not found", gorm.ErrRecordNotFound, mirrorerrors.KindNotFound},
		{"conn done", sql.ErrConnDone, mirrorerrors.KindClosed},
		{"duplicate key", gorm.ErrDuplicatedKey, mirrorerrors.KindConstraint},
		{"storage error keeps kind", mirrorerrors.NewStorageError("open", mirrorerrors.KindQuota, errors.New("x")), mirrorerrors.KindQuota},
		{"schema mismatch", &mirrorerrors.SchemaMismatchError{Missing: []string{"meta"}}, mirrorerrors.KindNotFound},
		{"anything else", errors.New("strange"), mirrorerrors.KindUnknown},
		{"nil", nil, mirrorerrors.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestKindRecoverable(t *testing.T) {
	for _, kind := range []mirrorerrors.Kind{mirrorerrors.KindAbort, mirrorerrors.KindUnknown, mirrorerrors.KindNotFound, mirrorerrors.KindConstraint} {
		assert.True(t, kind.Recoverable(), kind.String())
	}
	for _, kind := range []mirrorerrors.Kind{mirrorerrors.KindBlocked, mirrorerrors.KindBlockedTimeout, mirrorerrors.KindQuota, mirrorerrors.KindVersion, mirrorerrors.KindClosed, mirrorerrors.KindCancelled} {
		assert.False(t, kind.Recoverable(), kind.String())
	}
}

func TestNewDialer(t *testing.T) {
	_, err := NewDialer(nil)
	assert.Error(t, err)

	_, err = NewDialer(&DatabaseConfig{Driver: "mongo"})
	assert.Error(t, err)

	_, err = NewDialer(&DatabaseConfig{Driver: "postgres"})
	assert.Error(t, err)

	dial, err := NewDialer(&DatabaseConfig{Path: ":memory:"})
	assert.NoError(t, err)
	assert.NotNil(t, dial)
}
