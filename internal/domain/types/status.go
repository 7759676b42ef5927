package types

// CallStatus is the certified processing state of an asynchronous call.
type CallStatus string

// Call states. Unknown, Received and Processing are transient; Replied,
// Rejected and Done are terminal.
const (
	StatusUnknown    CallStatus = "unknown"
	StatusReceived   CallStatus = "received"
	StatusProcessing CallStatus = "processing"
	StatusReplied    CallStatus = "replied"
	StatusRejected   CallStatus = "rejected"
	StatusDone       CallStatus = "done"
)

// String returns the wire form of the status.
func (s CallStatus) String() string { return string(s) }

// IsTerminal reports whether no further polling is meaningful.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case StatusReplied, StatusRejected, StatusDone:
		return true
	default:
		return false
	}
}

// ParseCallStatus maps the certified status leaf to a CallStatus.
func ParseCallStatus(s string) (CallStatus, bool) {
	switch CallStatus(s) {
	case StatusUnknown, StatusReceived, StatusProcessing, StatusReplied, StatusRejected, StatusDone:
		return CallStatus(s), true
	default:
		return "", false
	}
}

// RejectInfo describes why the replica rejected a call.
type RejectInfo struct {
	Code      uint64 `json:"code"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
}
