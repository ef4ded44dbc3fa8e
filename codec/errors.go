package codec

import "errors"

const Namespace = "codec"

var (
	ErrUnknownFormat = errors.New(Namespace + ": unknown image format")
	ErrMalformed     = errors.New(Namespace + ": malformed image data")
	ErrTooLarge      = errors.New(Namespace + ": image exceeds pixel limit")
)
