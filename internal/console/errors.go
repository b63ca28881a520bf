package console

import (
	"github.com/diewo77/studio-console/auth"
	"github.com/diewo77/studio-console/i18n"
)

// userError carries a translated message for display and the cause for
// errors.Is.
type userError struct {
	msg string
	err error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.err }

func (a *app) fail(err error) error {
	if err == nil {
		return nil
	}
	return &userError{msg: i18n.T(a.lang, auth.Code(err)), err: err}
}
