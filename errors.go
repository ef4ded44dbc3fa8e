package imagesource

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/oklog/ulid/v2"
)

const Namespace = "imagesource"

var (
	// ErrTrustViolation is delivered to every subscription terminated because two
	// distinct trust tags met on one source. It is never retried.
	ErrTrustViolation = errors.New(Namespace + ": conflicting trust tags on one source")

	// ErrAdmissionRejected is delivered when the scheduler refuses a decode.
	ErrAdmissionRejected = errors.New(Namespace + ": decode admission rejected")

	// ErrDecodeFailure wraps codec and stream failures of one decode attempt.
	ErrDecodeFailure = errors.New(Namespace + ": decode failed")

	// ErrStaleResult marks the outcome of a superseded decoder. It is only logged.
	ErrStaleResult = errors.New(Namespace + ": decode result superseded")

	// ErrResourceGone may be returned (wrapped) by an Opener or Codec when the
	// underlying bytes no longer exist; observers then get needsReload=true.
	ErrResourceGone = errors.New(Namespace + ": underlying resource is gone")

	// ErrClosed is delivered to subscribers of a closed source and returned by
	// Subscribe afterwards.
	ErrClosed = errors.New(Namespace + ": source is closed")

	// ErrKeyInUse is returned by Cache.Put for a key created by Cache.Get over
	// another opener.
	ErrKeyInUse = errors.New(Namespace + ": cache key is served by another opener")

	ErrNilObserver     = errors.New(Namespace + ": observer is nil")
	ErrInvalidObserver = errors.New(Namespace + ": observer type is not comparable")
	ErrInvalidConfig   = errors.New(Namespace + ": invalid configuration")
)

// DecodeError is the error delivered to observers when a decode attempt fails.
// It matches ErrDecodeFailure and the underlying cause with errors.Is.
type DecodeError struct {
	err       error
	source    string
	decoderID ulid.ULID
}

func newDecodeError(err error, source string, id ulid.ULID) *DecodeError {
	return &DecodeError{err: err, source: source, decoderID: id}
}

func (e *DecodeError) Error() string {
	return ErrDecodeFailure.Error() + ": " + e.err.Error()
}

// Unwrap exposes both the taxonomy sentinel and the cause.
func (e *DecodeError) Unwrap() []error { return []error{ErrDecodeFailure, e.err} }

// Source returns the name of the source that failed.
func (e *DecodeError) Source() string { return e.source }

// DecoderID returns the identifier of the failed decode attempt.
func (e *DecodeError) DecoderID() ulid.ULID { return e.decoderID }

// NeedsReload reports whether the failure means the resource itself is gone.
func (e *DecodeError) NeedsReload() bool { return resourceGone(e.err) }

func (e *DecodeError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "decode(source=%s,id=%s): %+v", e.source, e.decoderID, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractDecoderID returns the decode attempt identifier carried by err, if any.
func ExtractDecoderID(err error) (ulid.ULID, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.decoderID, true
	}
	return ulid.ULID{}, false
}

func resourceGone(err error) bool {
	return errors.Is(err, ErrResourceGone) || errors.Is(err, fs.ErrNotExist)
}
