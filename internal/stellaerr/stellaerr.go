// Package stellaerr defines the engine's typed error kinds (spec §7).
package stellaerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates the error taxonomy surfaced to callers and events.
type Kind int

const (
	KindInvalidArg Kind = iota
	KindNotPrepared
	KindUnsupported
	KindIO
	KindDecode
	KindPluginInternal
	KindTransformStageNotFound
	KindNoActivePipeline
	KindSinkStalled
	KindSpecQueryFailed
	KindShadowCopyFailed
	KindAggregate
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArg:
		return "InvalidArg"
	case KindNotPrepared:
		return "NotPrepared"
	case KindUnsupported:
		return "Unsupported"
	case KindIO:
		return "IoError"
	case KindDecode:
		return "DecodeError"
	case KindPluginInternal:
		return "PluginInternal"
	case KindTransformStageNotFound:
		return "TransformStageNotFound"
	case KindNoActivePipeline:
		return "NoActivePipeline"
	case KindSinkStalled:
		return "SinkStalled"
	case KindSpecQueryFailed:
		return "SpecQueryFailed"
	case KindShadowCopyFailed:
		return "ShadowCopyFailed"
	case KindAggregate:
		return "AggregateError"
	default:
		return "Unknown"
	}
}

// Error is the engine's typed error; StageKey and Operation are populated only for the
// kinds that carry them (TransformStageNotFound, NoActivePipeline).
type Error struct {
	Kind      Kind
	Message   string
	StageKey  string
	Operation string
	Causes    []error // populated for KindAggregate
	wrapped   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTransformStageNotFound:
		return fmt.Sprintf("transform stage not found: %s", e.StageKey)
	case KindNoActivePipeline:
		return fmt.Sprintf("no active pipeline for operation %s", e.Operation)
	case KindAggregate:
		msgs := make([]string, 0, len(e.Causes))
		for _, c := range e.Causes {
			msgs = append(msgs, c.Error())
		}
		return strings.Join(msgs, "; ")
	default:
		if e.Message != "" {
			return e.Message
		}
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.wrapped }

// New builds a typed error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a typed error of the given kind that unwraps to cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf("%s: %v", message, cause), wrapped: cause}
}

// StageNotFound builds the TransformStageNotFound variant.
func StageNotFound(stageKey string) *Error {
	return &Error{Kind: KindTransformStageNotFound, StageKey: stageKey}
}

// NoActivePipeline builds the NoActivePipeline{operation} variant.
func NoActivePipeline(operation string) *Error {
	return &Error{Kind: KindNoActivePipeline, Operation: operation}
}

// Aggregate joins per-candidate errors (decoder-open aggregation, §7).
func Aggregate(causes []error) *Error {
	return &Error{Kind: KindAggregate, Causes: causes}
}

// Is reports whether err (or something it wraps) is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
