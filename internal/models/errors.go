package models

// ValidationError reports input the portal refuses, such as an unregistered CPF.
type ValidationError struct {
	Message string
	Cause   error
}

func (e *ValidationError) Error() string { return joinCause(e.Message, e.Cause) }
func (e *ValidationError) Unwrap() error { return e.Cause }

// BanError reports a suspended account.
type BanError struct {
	Message string
	CPF     string
}

func (e *BanError) Error() string { return e.Message }

// LookupError reports a failed or timed out backend call.
type LookupError struct {
	Op    string
	Cause error
}

func (e *LookupError) Error() string { return joinCause(e.Op+" failed", e.Cause) }
func (e *LookupError) Unwrap() error { return e.Cause }

// AuthError reports rejected credentials or a credential service failure.
type AuthError struct {
	Message string
	Cause   error
}

func (e *AuthError) Error() string { return joinCause(e.Message, e.Cause) }
func (e *AuthError) Unwrap() error { return e.Cause }

func joinCause(message string, cause error) string {
	if cause == nil {
		return message
	}
	return message + ": " + cause.Error()
}
