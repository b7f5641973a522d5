package circuit

import "fmt"

// RegistrationError indicates a circuit registration request was malformed
type RegistrationError struct {
	CircuitID string
	Detail    string
}

// Error returns a human-readable description of the error
func (e *RegistrationError) Error() string {
	return fmt.Sprintf("failed to register circuit %s; %s", e.CircuitID, e.Detail)
}

// Kind returns the machine-readable error kind
func (e *RegistrationError) Kind() string {
	return "registration_error"
}

// InvariantViolationError indicates a request conflicts with the recorded
// lifecycle state of the circuit
type InvariantViolationError struct {
	Detail string
}

// Error returns a human-readable description of the error
func (e *InvariantViolationError) Error() string {
	return e.Detail
}

// Kind returns the machine-readable error kind
func (e *InvariantViolationError) Kind() string {
	return "invariant_violation"
}

// CompileInProgressError indicates a compilation is already running for the
// circuit; callers should retry after the running compilation completes
type CompileInProgressError struct {
	CircuitID string
}

// Error returns a human-readable description of the error
func (e *CompileInProgressError) Error() string {
	return fmt.Sprintf("compilation already in progress for circuit %s", e.CircuitID)
}

// Kind returns the machine-readable error kind
func (e *CompileInProgressError) Kind() string {
	return "compile_in_progress"
}
