package isa

import "errors"

var (
	errMalformedNumericPrefix = errors.New("malformed numeric literal prefix")
	errUnterminatedString     = errors.New("unterminated string literal")
	errUnterminatedEscape     = errors.New("unterminated escape sequence")
	errMalformedBitExpr       = errors.New("malformed bit expression: expected '@('")
	errUnterminatedBitExpr    = errors.New("unterminated bit expression")
)
