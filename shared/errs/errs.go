package errs

import (
	"fmt"
	"strings"

	cr "github.com/cockroachdb/errors"
)

// Wrap annotates err with msg and records a stack trace at the call site.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return cr.Wrapf(err, format, args...)
}

// Mark tags err with markErr without changing its message. Check marks with
// Is; the standard library's errors.Is does not see them.
func Mark(err error, markErr error) error {
	if err == nil {
		return markErr
	}
	return cr.Mark(err, markErr)
}

// Is reports whether err matches target, including marks added by Mark.
func Is(err, target error) bool {
	return cr.Is(err, target)
}

// ExtractStackLines renders the verbose form of err and keeps at most maxLines lines.
func ExtractStackLines(err error, maxLines int) []string {
	if err == nil {
		return nil
	}
	s := fmt.Sprintf("%+v", err)
	lines := strings.Split(s, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}
