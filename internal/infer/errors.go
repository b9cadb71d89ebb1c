package infer

import "fmt"

// LogicError reports a broken invariant of the analyzed definitions or of
// the resolver itself. Resolution stops when one is raised.
type LogicError struct {
	Message string
}

func (e *LogicError) Error() string {
	return "logic error: " + e.Message
}

func raise(format string, args ...any) {
	panic(&LogicError{Message: fmt.Sprintf(format, args...)})
}
