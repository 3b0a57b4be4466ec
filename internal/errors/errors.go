// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package errors implements the small, closed error taxonomy netpolicy
// surfaces at every interface: decode failures of serialized input (Yaml),
// semantic validation failures (Invalid), unrecognized share-URI shapes
// (InvalidUrl), base64 decode failures inside a share-URI payload
// (Decode), and missing-part or node-validation failures of an otherwise
// decoded URI (Parse).
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies which arm of the taxonomy an Error belongs to.
type Kind int

const (
	KindYaml Kind = iota
	KindInvalid
	KindInvalidURL
	KindDecode
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindYaml:
		return "yaml"
	case KindInvalid:
		return "invalid"
	case KindInvalidURL:
		return "invalid_url"
	case KindDecode:
		return "decode"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error is a structured netpolicy error. It never carries a stack trace;
// the message is expected to include offending values and, where
// applicable, a 1-based index or line number (spec §7).
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func newErr(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func newErrf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Yaml reports a decode failure of serialized input (YAML document or,
// inside the proxy-link codec, the JSON blob carried by a vmess:// URI).
func Yaml(format string, args ...any) error { return newErrf(KindYaml, format, args...) }

// Invalid reports a semantic validation failure of an otherwise decoded
// structure.
func Invalid(format string, args ...any) error { return newErrf(KindInvalid, format, args...) }

// InvalidURL reports a share-URI with an unrecognized scheme or shape.
func InvalidURL(format string, args ...any) error { return newErrf(KindInvalidURL, format, args...) }

// Decode reports a base64 decode failure inside a share-URI payload.
func Decode(format string, args ...any) error { return newErrf(KindDecode, format, args...) }

// Parse reports a decoded URI missing a required part (host, port, id,
// password) or a node that failed validation.
func Parse(format string, args ...any) error { return newErrf(KindParse, format, args...) }

// Wrap attaches an underlying error to a new Error of the given kind,
// preserving the chain for errors.Is / errors.As.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: err}
}

// GetKind returns the Kind of err, or false if err is not a netpolicy Error.
func GetKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain matching target's type.
func As(err error, target any) bool { return errors.As(err, target) }
