package webhook

import (
	"errors"
	"fmt"
)

// Kind classifies a processing failure. The dispatcher maps each kind to a
// response status and description; handlers only return errors.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindNotFound
	KindBusinessRule
	KindInvalidValue
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindInvalidValue:
		return "invalid_value"
	case KindIntegrity:
		return "integrity"
	default:
		return "unexpected"
	}
}

// Error is the failure type returned by event handlers.
type Error struct {
	Kind Kind
	// Field names the offending field for validation and invalid-value errors.
	Field string
	// ConversationID is set once the handler has resolved it.
	ConversationID string
	Msg            string
	Err            error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindUnexpected when err is not an *Error.
func KindOf(err error) Kind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return KindUnexpected
}

func missingField(field string) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: "missing required field: " + field}
}

func invalidValue(field, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidValue, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func conversationNotFound(id string) *Error {
	return &Error{Kind: KindNotFound, ConversationID: id, Msg: fmt.Sprintf("conversation %s not found", id)}
}

func conversationClosed(id string) *Error {
	return &Error{Kind: KindBusinessRule, ConversationID: id, Msg: "cannot add message to closed conversation " + id}
}

func integrityViolation(conversationID string, err error) *Error {
	return &Error{Kind: KindIntegrity, ConversationID: conversationID, Err: err}
}

func unexpected(conversationID string, err error) *Error {
	return &Error{Kind: KindUnexpected, ConversationID: conversationID, Err: err}
}
