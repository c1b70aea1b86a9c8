package logging

import (
	"io"

	"github.com/rs/zerolog"
)

var (
	_ Logger = (*ZerologLogger)(nil)
	_ Logger = (*SlogLogger)(nil)
)

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return NewZerologLogger(zerolog.New(io.Discard).Level(zerolog.Disabled))
}
