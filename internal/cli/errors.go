package cli

// Error codes for structured error responses.
// These codes are stable and can be relied upon by agents. Diagram
// operation failures keep the operation's own code (NO_ACTIVE_DOCUMENT,
// SHAPE_NOT_FOUND, ...).
const (
	ErrConfigInvalid   = "CONFIG_INVALID"
	ErrConfigExists    = "CONFIG_EXISTS"
	ErrInvalidInput    = "INVALID_INPUT"
	ErrMissingArgument = "MISSING_ARGUMENT"

	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrServerFailed       = "SERVER_FAILED"
	ErrRPCError           = "RPC_ERROR"

	ErrJournalUnavailable = "JOURNAL_UNAVAILABLE"
	ErrAuditUnavailable   = "AUDIT_UNAVAILABLE"
	ErrTextGenFailed      = "TEXTGEN_FAILED"

	ErrInternal = "INTERNAL_ERROR"
)
