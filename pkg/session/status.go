package session

// StatusKind selects the presentation style of an auth status message. Downstream
// logic branches on it (e.g. success toasts may be skipped), so the taxonomy is
// part of the contract even though rendering is not.
type StatusKind string

const (
	StatusBase    StatusKind = "base"
	StatusSuccess StatusKind = "success"
	StatusWarning StatusKind = "warning"
	StatusError   StatusKind = "error"
)

// AuthStatus is a one-shot message attached to a session write that communicates
// the outcome of an auth attempt. The client reads it once on next render; the
// store clears it on read.
type AuthStatus struct {
	Kind    StatusKind `json:"kind"`
	Reject  bool       `json:"reject"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// SuccessStatus builds a non-rejecting success message.
func SuccessStatus(title, message string) *AuthStatus {
	return &AuthStatus{Kind: StatusSuccess, Title: title, Message: message}
}

// WarningStatus builds a non-rejecting warning message.
func WarningStatus(title, message string) *AuthStatus {
	return &AuthStatus{Kind: StatusWarning, Title: title, Message: message}
}

// ErrorStatus builds a rejecting error message.
func ErrorStatus(title, message string) *AuthStatus {
	return &AuthStatus{Kind: StatusError, Reject: true, Title: title, Message: message}
}
