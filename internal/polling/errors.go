package polling

import (
	"fmt"

	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
)

// RejectError reports a call the replica rejected. It matches
// errors.ErrCallRejected.
type RejectError struct {
	RequestID domain.RequestID
	Info      domain.RejectInfo
}

func (e *RejectError) Error() string {
	msg := fmt.Sprintf("call was rejected: request %s: code %d: %s", e.RequestID, e.Info.Code, e.Info.Message)
	if e.Info.ErrorCode != "" {
		msg += " (" + e.Info.ErrorCode + ")"
	}
	return msg
}

// Unwrap exposes the sentinel.
func (e *RejectError) Unwrap() error { return cerrors.ErrCallRejected }
