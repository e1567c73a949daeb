package tuner

import (
	"errors"
	"strconv"
)

// ErrNoMoreTrials signals that the algorithm currently has no further
// assignments to offer under its search space. It is an expected terminal
// condition, not a defect: callers reduce their batch and carry on. Use
// errors.Is to detect it. Internal faults must never be wrapped in it.
var ErrNoMoreTrials = errors.New("no more trials available")

// UnimplementedError is returned by a required operation that the concrete
// algorithm did not override. It surfaces at first use rather than at
// construction so that partial implementations remain valid values.
type UnimplementedError struct {
	Op string
}

func (e *UnimplementedError) Error() string {
	return "tuner: " + e.Op + " not implemented"
}

func (e *UnimplementedError) Is(target error) bool {
	_, ok := target.(*UnimplementedError)
	return ok
}

// IsUnimplemented reports whether err marks a missing required operation.
func IsUnimplemented(err error) bool {
	return errors.Is(err, &UnimplementedError{})
}

// ResultError reports a trial result that violates the contract: an unknown
// parameter id, or an assignment that does not match what was issued for it.
// The model is left untouched.
type ResultError struct {
	ParameterID int
	Reason      string
}

func (e *ResultError) Error() string {
	return "invalid trial result for parameter " + strconv.Itoa(e.ParameterID) + ": " + e.Reason
}

func (e *ResultError) Is(target error) bool {
	_, ok := target.(*ResultError)
	return ok
}
