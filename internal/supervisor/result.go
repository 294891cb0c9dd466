package supervisor

import (
	"net/http"

	"github.com/steveyegge/authcap/internal/capture"
	"github.com/steveyegge/authcap/internal/exitcode"
)

// Message is the symbolic outcome code of a control operation.
type Message string

const (
	MsgAlreadyRunning     Message = "setupAuthAlreadyRunning"
	MsgInvalidIndex       Message = "errorInvalidIndex"
	MsgStarted            Message = "setupAuthStarted"
	MsgReloginStarted     Message = "setupAuthReloginStarted"
	MsgStartFailed        Message = "setupAuthStartFailed"
	MsgReloginStartFailed Message = "setupAuthReloginStartFailed"
	MsgNotRunning         Message = "setupAuthNotRunning"
	MsgContinueSent       Message = "setupAuthContinueSent"
	MsgContinueFailed     Message = "setupAuthContinueFailed"
	MsgCancelSuccess      Message = "setupAuthCancelSuccess"
	MsgCancelFailed       Message = "setupAuthCancelFailed"
)

// Result is the structured outcome of start, continue and cancel.
// Status is an HTTP-style status code.
type Result struct {
	OK      bool    `json:"ok"`
	Status  int     `json:"status"`
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

func ok(msg Message) Result {
	return Result{OK: true, Status: http.StatusOK, Message: msg}
}

func fail(status int, msg Message, err error) Result {
	r := Result{Status: status, Message: msg}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func startedResult(mode capture.Mode) Result {
	if mode == capture.ModeRelogin {
		return ok(MsgReloginStarted)
	}
	return ok(MsgStarted)
}

func startFailedResult(mode capture.Mode, err error) Result {
	if mode == capture.ModeRelogin {
		return fail(http.StatusInternalServerError, MsgReloginStartFailed, err)
	}
	return fail(http.StatusInternalServerError, MsgStartFailed, err)
}

// Err converts a failed result into a coded error, nil when OK.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	text := string(r.Message)
	if r.Error != "" {
		text += ": " + r.Error
	}
	switch r.Status {
	case http.StatusBadRequest:
		return exitcode.New(exitcode.ErrUsage, text)
	case http.StatusConflict:
		if r.Message == MsgAlreadyRunning {
			return exitcode.New(exitcode.ErrBusy, text)
		}
		return exitcode.New(exitcode.ErrConflict, text)
	default:
		return exitcode.New(exitcode.ErrInternal, text)
	}
}
