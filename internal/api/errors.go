package api

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRunNotFound    = errors.New("run_not_found")
)

// invalidRequestError is a rejected run request. param names the offending
// request field when one can be blamed.
type invalidRequestError struct {
	param string
	msg   string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(param, msg string) error {
	return invalidRequestError{param: param, msg: msg}
}

// invalidParam returns the request field blamed by err, or "".
func invalidParam(err error) string {
	var ire invalidRequestError
	if errors.As(err, &ire) {
		return ire.param
	}
	return ""
}
