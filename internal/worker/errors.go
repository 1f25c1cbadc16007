package worker

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	saterrs "github.com/jdholdren/satelit/internal/errors"
)

// kindOf recovers the kind of an error that crossed an activity boundary, where
// only the application error's type survives.
func kindOf(err error) saterrs.Kind {
	if err == nil {
		return saterrs.Unexpected
	}

	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		return saterrs.KindOf(err)
	}

	return saterrs.ParseKind(appErr.Type())
}
