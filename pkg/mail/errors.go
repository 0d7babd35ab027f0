// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"errors"
	"fmt"

	"github.com/telekom/mailtask/pkg/task"
)

var (
	// ErrMissingSMTPConfiguration is returned when neither the task nor the
	// system configuration provides an SMTP host.
	ErrMissingSMTPConfiguration = errors.New("missing SMTP configuration")

	// ErrInvalidAddress indicates a malformed email address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrMissingRequiredField indicates a required task parameter is absent
	// and has no configured fallback.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrInvalidParameter indicates a task parameter of the wrong type or form.
	ErrInvalidParameter = task.ErrInvalidParameter

	// ErrAttachmentRead indicates an attachment could not be loaded from the workspace.
	ErrAttachmentRead = errors.New("failed to read attachment")

	// ErrTransport indicates a failure while talking to the SMTP server.
	ErrTransport = errors.New("smtp transport failure")
)

// InvalidAddressError reports an address that is not of the form local@domain.
type InvalidAddressError struct {
	Field   string
	Address string
	Err     error
}

func (e *InvalidAddressError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid address %q in %s: %v", e.Address, e.Field, e.Err)
	}
	return fmt.Sprintf("invalid address %q in %s", e.Address, e.Field)
}

func (e *InvalidAddressError) Unwrap() error { return e.Err }

func (e *InvalidAddressError) Is(target error) bool { return target == ErrInvalidAddress }

// MissingRequiredFieldError names the required field that could not be resolved.
type MissingRequiredFieldError struct {
	Field string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("parameter '%s' is required but not set", e.Field)
}

func (e *MissingRequiredFieldError) Is(target error) bool { return target == ErrMissingRequiredField }

// AttachmentReadError carries the workspace path of an unreadable attachment.
type AttachmentReadError struct {
	Path string
	Err  error
}

func (e *AttachmentReadError) Error() string {
	return fmt.Sprintf("failed to read attachment %q: %v", e.Path, e.Err)
}

func (e *AttachmentReadError) Unwrap() error { return e.Err }

func (e *AttachmentReadError) Is(target error) bool { return target == ErrAttachmentRead }

// ErrorKind classifies a TaskError for the host engine.
type ErrorKind string

const (
	// KindConfig covers missing SMTP endpoints, missing required fields and malformed input.
	KindConfig ErrorKind = "config"
	// KindAttachment covers attachment read failures.
	KindAttachment ErrorKind = "attachment"
	// KindTransport covers connection, TLS, authentication and delivery failures.
	KindTransport ErrorKind = "transport"
)

// TaskError is the single failure value reported to the workflow engine.
type TaskError struct {
	Kind    ErrorKind
	Message string
	Cause   error
	// Details is the structured payload forwarded to the engine's error record.
	Details map[string]any
}

func (e *TaskError) Error() string {
	if e.Cause != nil && e.Message != e.Cause.Error() {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *TaskError) Unwrap() error { return e.Cause }

// Retryable reports whether the host engine may retry the task. Only transport
// failures are candidates; configuration problems fail the same way every time.
func (e *TaskError) Retryable() bool {
	return e.Kind == KindTransport
}

// newTaskError classifies err and wraps it into a TaskError.
func newTaskError(err error) *TaskError {
	var te *TaskError
	if errors.As(err, &te) {
		return te
	}

	kind := KindConfig
	details := map[string]any{"message": err.Error()}

	var attachErr *AttachmentReadError
	switch {
	case errors.As(err, &attachErr):
		kind = KindAttachment
		details["path"] = attachErr.Path
	case errors.Is(err, ErrTransport):
		kind = KindTransport
	}

	var addrErr *InvalidAddressError
	if errors.As(err, &addrErr) {
		details["field"] = addrErr.Field
		details["address"] = addrErr.Address
	}
	var missing *MissingRequiredFieldError
	if errors.As(err, &missing) {
		details["field"] = missing.Field
	}

	return &TaskError{
		Kind:    kind,
		Message: err.Error(),
		Cause:   err,
		Details: details,
	}
}
