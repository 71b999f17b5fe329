// Package coreerrors defines the error taxonomy shared by every component
// of the device-automation core, per the error-handling design: Transient,
// Timeout, DeviceNotReady, AmbiguousPlatform, BadRequest, UnknownTool,
// ToolFailure and IntegrityError are distinct kinds with distinct retry and
// propagation rules, never collapsed into one generic error string.
package coreerrors

import (
	"errors"
	"fmt"
)

// TimeoutErr is returned when a watched operation exceeds its deadline.
// Never retried silently by the caller.
type TimeoutErr struct {
	Op      string
	Timeout string
}

func (e *TimeoutErr) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// NonZeroExit is returned when a subprocess exits with a non-zero code.
type NonZeroExit struct {
	Command string
	Code    int
	Stderr  string
}

func (e *NonZeroExit) Error() string {
	return fmt.Sprintf("command %q exited with code %d: %s", e.Command, e.Code, e.Stderr)
}

// NotFoundErr is returned when a tool binary cannot be resolved on the
// platform's search path.
type NotFoundErr struct {
	Tool string
}

func (e *NotFoundErr) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Tool)
}

// DeviceNotReady is returned when readiness verification (§4.10 step 7)
// fails. The caller is expected to demote its current-device slot and
// retry the ensureDeviceReady algorithm from scratch.
type DeviceNotReady struct {
	DeviceID string
	Reason   string
}

func (e *DeviceNotReady) Error() string {
	return fmt.Sprintf("device %s is not ready: %s", e.DeviceID, e.Reason)
}

// AmbiguousPlatform is returned when both an Android and an iOS device are
// present and the caller has not pinned a platform. Terminal for that
// call; never auto-recovered.
type AmbiguousPlatform struct {
	Android []string
	IOS     []string
}

func (e *AmbiguousPlatform) Error() string {
	return fmt.Sprintf("ambiguous platform: android devices %v and iOS devices %v are both present; pin a platform", e.Android, e.IOS)
}

// FieldReason is a single schema-validation failure on one named field.
type FieldReason struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// BadRequest is returned when tool-call parameters fail schema validation.
type BadRequest struct {
	Tool    string
	Reasons []FieldReason
}

func (e *BadRequest) Error() string {
	return fmt.Sprintf("bad request for tool %s: %d field error(s)", e.Tool, len(e.Reasons))
}

// UnknownTool is returned when the registry has no handler for a name.
type UnknownTool struct {
	Tool string
}

func (e *UnknownTool) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Tool)
}

// ToolFailure wraps a handler-raised error or a {success:false} result so
// it can be recorded into an authoring session as-is (spec intends that
// intended failures are capturable in a plan, not swallowed).
type ToolFailure struct {
	Tool  string
	Cause error
}

func (e *ToolFailure) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Cause)
}

func (e *ToolFailure) Unwrap() error { return e.Cause }

// IntegrityError is returned when a downloaded artifact's checksum does
// not match the expected digest. The file has already been deleted by the
// time this is returned.
type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// OutOfBounds is returned by the Plan Executor when a requested start
// step index falls outside the plan's step range.
type OutOfBounds struct {
	Index, Len int
}

func (e *OutOfBounds) Error() string {
	return fmt.Sprintf("start step %d out of bounds for plan with %d step(s)", e.Index, e.Len)
}

// Is enables errors.Is comparisons against the exported sentinel kinds
// below without requiring callers to type-assert every time.
var (
	ErrTimeout           = errors.New("timeout")
	ErrDeviceNotReady    = errors.New("device not ready")
	ErrAmbiguousPlatform = errors.New("ambiguous platform")
	ErrUnknownTool       = errors.New("unknown tool")
	ErrBadRequest        = errors.New("bad request")
)

func (e *TimeoutErr) Is(target error) bool        { return target == ErrTimeout }
func (e *DeviceNotReady) Is(target error) bool    { return target == ErrDeviceNotReady }
func (e *AmbiguousPlatform) Is(target error) bool { return target == ErrAmbiguousPlatform }
func (e *UnknownTool) Is(target error) bool       { return target == ErrUnknownTool }
func (e *BadRequest) Is(target error) bool        { return target == ErrBadRequest }
