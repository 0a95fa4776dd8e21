package cerr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/proto"

	"github.com/kazz187/devguild/pkg/clog"
)

type Error struct {
	Code    Code
	Reason  Reason          // domain kind returned alongside Code
	Msg     string          // message returned to the user with Code
	Err     error           // underlying error kept for logs only
	Stack   string          // stack trace for error-level codes
	Details []proto.Message // extra details returned to the user
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if clog.ConnectCodeToLevel(code.ConnectCode()) == clog.LevelError {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

func (e *Error) Error() string {
	prefix := e.Code.String()
	if e.Reason != "" {
		prefix = fmt.Sprintf("%s/%s", prefix, e.Reason)
	}
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", prefix, e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", prefix, e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AddViolation attaches a field-level validation failure.
func (e *Error) AddViolation(field, ruleID, msg string) *Error {
	rule := field + "." + ruleID
	e.Details = append(e.Details, &validate.Violation{
		Message: &msg,
		RuleId:  &rule,
	})
	return e
}

// NewValidationError builds an InvalidArgument error carrying a single
// violation for field.
func NewValidationError(field, ruleID, msg string) *Error {
	return NewError(InvalidArgument, "invalid request", nil).AddViolation(field, ruleID, msg)
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}

type httpErrorDetail struct {
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

type httpError struct {
	Code    string            `json:"code"`
	Reason  string            `json:"reason,omitempty"`
	Message string            `json:"message"`
	Details []httpErrorDetail `json:"details,omitempty"`
}

func newHTTPError(e *Error) httpError {
	he := httpError{
		Code:    e.Code.String(),
		Reason:  string(e.Reason),
		Message: e.Msg,
	}
	for _, d := range e.Details {
		if v, ok := d.(*validate.Violation); ok {
			he.Details = append(he.Details, httpErrorDetail{Rule: v.GetRuleId(), Message: v.GetMessage()})
		}
	}
	return he
}

func ExtractToHTTPResponse(ctx context.Context, rw http.ResponseWriter, response *responseReceiver) {
	if response.err == nil {
		writeJSON(ctx, rw, response.status, response.response)
		return
	}
	if errors.Is(response.err, context.Canceled) {
		writeJSONError(ctx, rw, NewError(Canceled, "connection closed", response.err))
		return
	}
	var dnsErr *net.DNSError
	if errors.As(response.err, &dnsErr) && dnsErr.Err == "operation was canceled" {
		writeJSONError(ctx, rw, NewError(Canceled, "connection closed", response.err))
		return
	}

	clog.AddError(ctx, response.err)
	var cErr *Error
	if errors.As(response.err, &cErr) {
		if cErr.Stack != "" {
			clog.AddStack(ctx, cErr.Stack)
		}
		if cErr.Reason != "" {
			clog.AddAttribute(ctx, "reason", string(cErr.Reason))
		}
		writeJSONError(ctx, rw, cErr)
		return
	}
	writeJSONError(ctx, rw, NewError(Unknown, "unknown error", response.err))
}

func writeJSON(ctx context.Context, rw http.ResponseWriter, status int, response any) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(response); err != nil {
		writeJSONError(ctx, rw, NewError(Internal, "server error", err))
		return
	}
	if status == 0 {
		status = http.StatusOK
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	if _, err := rw.Write(buf.Bytes()); err != nil {
		clog.AddError(ctx, NewError(Internal, "server error", err))
	}
}

func writeJSONError(ctx context.Context, rw http.ResponseWriter, origErr *Error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(newHTTPError(origErr)); err != nil {
		buf = bytes.NewBufferString(`{"code":"internal","message":"server error"}`)
		origErr.Err = errors.Join(origErr.Err, err)
		clog.AddError(ctx, origErr)
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(origErr.Code.HTTPCode())
	if _, err := rw.Write(buf.Bytes()); err != nil {
		origErr.Err = errors.Join(origErr.Err, err)
		clog.AddError(ctx, origErr)
	}
}
