package repository

import (
	"errors"

	mirrorerrors "github.com/customeros/mailmirror/internal/errors"
)

var (
	ErrQueueCorrupt = errors.New("mutation queue value is not a list")
	ErrInvalidInput = mirrorerrors.ErrInvalidInput
)
