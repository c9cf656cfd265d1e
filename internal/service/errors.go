package service

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrItemNotFound     = errors.New("log item not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrNotProductOwner  = errors.New("only the creator can change this product")
	ErrUsernameRequired = errors.New("a username is required to publish products")
	ErrUsernameTaken    = errors.New("username is already taken")
	ErrInvalidUsername  = errors.New("username must be 3-15 characters of letters, digits or underscore")
	ErrInvalidDate      = errors.New("date must use the YYYY-MM-DD format")
	ErrInvalidInput     = errors.New("invalid input")
	ErrXPConflict       = errors.New("xp update kept conflicting with concurrent writes")

	// ErrPermissionDenied is returned by stores that enforce row access
	// without a postgres error code.
	ErrPermissionDenied = errors.New("permission denied")
)

// pgInsufficientPrivilege is the SQLSTATE postgres uses for denied access.
const pgInsufficientPrivilege = "42501"

// IsPermissionError reports whether err is a storage access denial.
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermissionDenied) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgInsufficientPrivilege
	}
	return strings.Contains(strings.ToLower(err.Error()), "permission denied")
}
