package store

import (
	"context"
	"errors"
	"strings"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// CategorizeError returns a stable label for store error metrics
// (timeout, connection, resources, decode, unknown).
func CategorizeError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsConnectionException(pgErr.Code):
			return "connection"
		case pgerrcode.IsInsufficientResources(pgErr.Code), pgerrcode.IsProgramLimitExceeded(pgErr.Code):
			return "resources"
		}
		return "unknown"
	}
	if errors.Is(err, memcache.ErrNoServers) || errors.Is(err, memcache.ErrServerError) {
		return "connection"
	}
	var timeoutErr *memcache.ConnectTimeoutError
	if errors.As(err, &timeoutErr) {
		return "timeout"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	if strings.Contains(errStr, "unmarshal") || strings.Contains(errStr, "invalid character") {
		return "decode"
	}
	return "unknown"
}
