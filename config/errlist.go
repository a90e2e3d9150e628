package config

import (
	"strings"
)

// ErrList collects every problem found in the settings file
type ErrList struct {
	errs []error
}

// Add appends err unless it is nil
func (e *ErrList) Add(err error) {
	if err == nil {
		return
	}
	e.errs = append(e.errs, err)
}

func (e *ErrList) Error() string {
	if len(e.errs) == 0 {
		return ""
	}
	if len(e.errs) == 1 {
		return e.errs[0].Error()
	}
	var b strings.Builder
	for i, err := range e.errs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Err returns nil when nothing was collected
func (e *ErrList) Err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return e
}

// Errors returns the collected errors
func (e *ErrList) Errors() []error {
	return e.errs
}
