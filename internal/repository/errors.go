package repository

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/valora-connect/internal/domain/connection"
)

// ErrUserNotFound is returned by user repositories for unknown usernames.
var ErrUserNotFound = errors.New("user not found")

// StorageError tags err as a backing store failure while keeping it inspectable.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, connection.ErrStorage, err)
}
