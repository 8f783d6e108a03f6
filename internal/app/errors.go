package app

import (
	"errors"
	"fmt"
)

var ErrUnknownCampaign = errors.New("unknown campaign")

// SetupError is a fatal failure before any message is sent: bad config,
// missing template or source, unusable storage or gateway.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string { return fmt.Sprintf("setup %s: %v", e.Op, e.Err) }

func (e *SetupError) Unwrap() error { return e.Err }

func setupErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &SetupError{Op: op, Err: err}
}

// IsSetup reports whether err is (or wraps) a SetupError.
func IsSetup(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}
