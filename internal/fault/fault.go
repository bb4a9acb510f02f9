// Package fault classifies request failures so transport layers can map
// them to a status code without inspecting message text.
package fault

import (
	"errors"
	"fmt"
)

// Kind partitions failures by who is at fault.
type Kind int

const (
	// KindInput covers malformed or rejected request content.
	KindInput Kind = iota
	// KindTooLarge covers payloads over a configured size limit.
	KindTooLarge
	// KindCollaborator covers failures of the inference process.
	KindCollaborator
	// KindInfra covers failures of the service's own infrastructure.
	KindInfra
)

// Fault is a classified error with a stable machine-readable code.
type Fault struct {
	Kind         Kind
	Code         string
	Message      string
	ValidOptions []string
	cause        error
}

func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.cause)
	}
	return f.Message
}

func (f *Fault) Unwrap() error { return f.cause }

func Input(code, message string) *Fault {
	return &Fault{Kind: KindInput, Code: code, Message: message}
}

// InputWithOptions attaches the accepted values to a rejection so the
// client can self-correct.
func InputWithOptions(code, message string, options []string) *Fault {
	return &Fault{Kind: KindInput, Code: code, Message: message, ValidOptions: options}
}

func TooLarge(code, message string) *Fault {
	return &Fault{Kind: KindTooLarge, Code: code, Message: message}
}

func Collaborator(code, message string, cause error) *Fault {
	return &Fault{Kind: KindCollaborator, Code: code, Message: message, cause: cause}
}

func Infra(code, message string, cause error) *Fault {
	return &Fault{Kind: KindInfra, Code: code, Message: message, cause: cause}
}

// As extracts a Fault from an error chain.
func As(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
