package cerr

import "errors"

// Reason is the machine-readable kind of a domain failure. It travels next to
// the transport Code so clients can branch on it without parsing messages.
type Reason string

const (
	ReasonTaskUnavailable         Reason = "TASK_UNAVAILABLE"
	ReasonCandidateIneligible     Reason = "CANDIDATE_INELIGIBLE"
	ReasonNoCapacity              Reason = "NO_CAPACITY"
	ReasonProvisioningFailed      Reason = "PROVISIONING_FAILED"
	ReasonInvalidTransition       Reason = "INVALID_TRANSITION"
	ReasonAssignmentNotCompleted  Reason = "ASSIGNMENT_NOT_COMPLETED"
	ReasonPaymentProcessingFailed Reason = "PAYMENT_PROCESSING_FAILED"
	ReasonConcurrentModification  Reason = "CONCURRENT_MODIFICATION"
)

// NewReasonError is NewError with a domain Reason attached.
func NewReasonError(code Code, reason Reason, msg string, underlying error) *Error {
	err := NewError(code, msg, underlying)
	err.Reason = reason
	return err
}

// ReasonOf returns the Reason of the first *Error in err's chain that carries one.
func ReasonOf(err error) Reason {
	for err != nil {
		var cErr *Error
		if !errors.As(err, &cErr) {
			return ""
		}
		if cErr.Reason != "" {
			return cErr.Reason
		}
		err = cErr.Err
	}
	return ""
}

func IsReason(err error, reason Reason) bool {
	return ReasonOf(err) == reason
}
