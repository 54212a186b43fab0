package domain

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrPasteNotFound  = NewErr("PASTE_NOT_FOUND", "not found", http.StatusNotFound)
	ErrPasteExpired   = NewErr("PASTE_EXPIRED", "paste expired", http.StatusNotFound)
	ErrPasteExhausted = NewErr("PASTE_EXHAUSTED", "paste view limit reached", http.StatusNotFound)
	ErrPasteExists    = NewErr("PASTE_EXISTS", "paste id already in use", http.StatusConflict)
	ErrPasteTooLarge  = NewErr("PASTE_TOO_LARGE", "paste too large", http.StatusBadRequest)
	ErrInvalidRequest = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrNotJSON        = NewErr("INVALID_REQUEST", "Request body must be JSON", http.StatusBadRequest)
	ErrStorage        = NewErr("STORAGE_UNAVAILABLE", "storage unavailable", http.StatusServiceUnavailable)
	ErrShuttingDown   = NewErr("SHUTTING_DOWN", "service shutting down", http.StatusServiceUnavailable)
	ErrInternalServer = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }
func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

// NewValidationErr describes a problem with the caller's own request. Unlike
// the other errors its message is shown verbatim.
func NewValidationErr(msg string) *Err {
	return &Err{Code: "VALIDATION_ERROR", Msg: msg, Status: http.StatusBadRequest}
}

func IsValidation(err error) bool {
	var e *Err
	return errors.As(err, &e) && e.Code == "VALIDATION_ERROR"
}

// StorageErr is a failed round trip to the backing store. No mutation was
// applied. It matches both ErrStorage and its cause under errors.Is.
type StorageErr struct {
	Op  string
	Err error
}

func (e *StorageErr) Error() string   { return e.Op + ": " + e.Err.Error() }
func (e *StorageErr) Unwrap() []error { return []error{ErrStorage, e.Err} }

func StorageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageErr{Op: op, Err: err}
}

// ErrResp is the JSON error body, e.g. {"error":"not found","code":"PASTE_NOT_FOUND"}.
type ErrResp struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func ToResp(err error) ErrResp {
	if e, ok := errors.Cause(err).(*Err); ok {
		return ErrResp{Error: e.Msg, Code: e.Code}
	}
	var e *Err
	if errors.As(err, &e) {
		return ErrResp{Error: e.Msg, Code: e.Code}
	}
	return ErrResp{Error: ErrInternalServer.Msg, Code: ErrInternalServer.Code}
}
// HTTPStatus maps err to its response status, 500 for unknown errors.
func HTTPStatus(err error) int {
	if e, ok := errors.Cause(err).(*Err); ok {
		return e.Status
	}
	var e *Err
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}
