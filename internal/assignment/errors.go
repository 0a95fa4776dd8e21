package assignment

import (
	"fmt"

	"github.com/kazz187/devguild/pkg/cerr"
)

func ErrTaskUnavailable(taskID string) error {
	return cerr.NewReasonError(cerr.FailedPrecondition, cerr.ReasonTaskUnavailable,
		fmt.Sprintf("task %s already has an active assignment", taskID), nil)
}

func ErrConcurrentModification(target, id string) error {
	return cerr.NewReasonError(cerr.Aborted, cerr.ReasonConcurrentModification,
		fmt.Sprintf("%s %s was modified concurrently", target, id), nil)
}

func ErrPaymentInProgress(assignmentID string, status PaymentStatus) error {
	return cerr.NewReasonError(cerr.FailedPrecondition, cerr.ReasonPaymentProcessingFailed,
		fmt.Sprintf("assignment %s already has a %s payment", assignmentID, status), nil)
}

// CheckPaymentUpdate validates a stored -> next payment change.
func CheckPaymentUpdate(stored, next *Payment) error {
	if !stored.Amount.Equal(next.Amount) {
		return cerr.NewError(cerr.FailedPrecondition, "payment amount is immutable", nil)
	}
	if stored.Status != next.Status && !CanAdvancePayment(stored.Status, next.Status) {
		return cerr.NewReasonError(cerr.FailedPrecondition, cerr.ReasonInvalidTransition,
			fmt.Sprintf("payment cannot move from %s to %s", stored.Status, next.Status), nil)
	}
	return nil
}

func ErrNotCompleted(id string) error {
	return cerr.NewReasonError(cerr.FailedPrecondition, cerr.ReasonAssignmentNotCompleted,
		fmt.Sprintf("assignment %s is not completed", id), nil)
}
