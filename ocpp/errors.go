package ocpp

// ErrorCode is the code field of a CallError frame.
type ErrorCode string

const (
	NotImplemented               ErrorCode = "NotImplemented"
	NotSupported                 ErrorCode = "NotSupported"
	InternalError                ErrorCode = "InternalError"
	ProtocolError                ErrorCode = "ProtocolError"
	SecurityError                ErrorCode = "SecurityError"
	PropertyConstraintViolation  ErrorCode = "PropertyConstraintViolation"
	OccurrenceConstraintViolation ErrorCode = "OccurrenceConstraintViolation"
	TypeConstraintViolation      ErrorCode = "TypeConstraintViolation"
	GenericError                 ErrorCode = "GenericError"

	// OCPP 1.6 names this FormationViolation; 2.x renamed it.
	FormationViolation ErrorCode = "FormationViolation"
	FormatViolation    ErrorCode = "FormatViolation"
)

// FormationViolationCode returns the malformed-payload error code for the
// given protocol generation.
func FormationViolationCode(v ProtocolVersion) ErrorCode {
	if v == V16 {
		return FormationViolation
	}
	return FormatViolation
}
