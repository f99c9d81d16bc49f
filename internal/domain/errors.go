package domain

import "errors"

var (
	ErrAuthMissing          = errors.New("backend credential missing")
	ErrUpstreamRejected     = errors.New("backend rejected the request")
	ErrUpstreamTimeout      = errors.New("backend polling budget exhausted")
	ErrUpstreamError        = errors.New("backend reported a processing failure")
	ErrProviderNotFound     = errors.New("unknown provider id")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrEmptyDocument        = errors.New("document payload is empty")
	ErrFileTooLarge         = errors.New("file exceeds maximum allowed size")
)
