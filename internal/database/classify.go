package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	mirrorerrors "github.com/customeros/mailmirror/internal/errors"
)

// classify maps a driver error onto a storage error kind.
func classify(err error) mirrorerrors.Kind {
	if err == nil {
		return mirrorerrors.KindUnknown
	}

	var storageErr *mirrorerrors.StorageError
	if errors.As(err, &storageErr) {
		return storageErr.Kind
	}
	var schemaErr *mirrorerrors.SchemaMismatchError
	if errors.As(err, &schemaErr) {
		return mirrorerrors.KindNotFound
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return classifySqlite(sqliteErr)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPostgres(pgErr)
	}

	switch {
	case errors.Is(err, context.Canceled):
		return mirrorerrors.KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return mirrorerrors.KindBlockedTimeout
	case errors.Is(err, gorm.ErrRecordNotFound):
		return mirrorerrors.KindNotFound
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		return mirrorerrors.KindClosed
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated):
		return mirrorerrors.KindConstraint
	}
	return mirrorerrors.KindUnknown
}

func classifySqlite(err sqlite3.Error) mirrorerrors.Kind {
	switch err.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return mirrorerrors.KindBlocked
	case sqlite3.ErrAbort, sqlite3.ErrInterrupt:
		return mirrorerrors.KindAbort
	case sqlite3.ErrFull, sqlite3.ErrNomem:
		return mirrorerrors.KindQuota
	case sqlite3.ErrCorrupt, sqlite3.ErrNotADB, sqlite3.ErrSchema:
		return mirrorerrors.KindVersion
	case sqlite3.ErrConstraint:
		return mirrorerrors.KindConstraint
	case sqlite3.ErrNotFound:
		return mirrorerrors.KindNotFound
	}
	return mirrorerrors.KindUnknown
}

func classifyPostgres(err *pgconn.PgError) mirrorerrors.Kind {
	switch err.Code {
	case "55P03", "55006":
		return mirrorerrors.KindBlocked
	case "40P01", "40001", "57014":
		return mirrorerrors.KindAbort
	case "53100", "53200", "53300":
		return mirrorerrors.KindQuota
	case "42P01":
		return mirrorerrors.KindNotFound
	case "57P01", "57P02", "57P03":
		return mirrorerrors.KindClosed
	}
	if strings.HasPrefix(err.Code, "23") {
		return mirrorerrors.KindConstraint
	}
	return mirrorerrors.KindUnknown
}
