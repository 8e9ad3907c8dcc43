/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-limitkit/log"
)

// NewLogger returns a logger suitable for tests: JSON format, "debug" level,
// writing to stderr synchronously. It is too slow for production use.
func NewLogger() log.FieldLogger {
	return NewLoggerWithOpts(LoggerOpts{Output: os.Stderr})
}

// LoggerOpts customizes the logger returned by NewLoggerWithOpts.
type LoggerOpts struct {
	Output io.Writer
}

// NewLoggerWithOpts is a variant of NewLogger with custom options.
// Nil opts.Output defaults to os.Stderr.
func NewLoggerWithOpts(opts LoggerOpts) log.FieldLogger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	w := &encodingWriter{
		enc: logf.NewJSONEncoder(logf.JSONEncoderConfig{
			FieldKeyTime: "time",
			EncodeTime:   logf.RFC3339NanoTimeEncoder,
		}),
		out: out,
	}
	return &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, w)}
}

type encodingWriter struct {
	sync.Mutex
	enc logf.Encoder
	out io.Writer
}

//nolint:gocritic
func (w *encodingWriter) WriteEntry(e logf.Entry) {
	w.Lock()
	defer w.Unlock()

	var buf logf.Buffer
	if err := w.enc.Encode(&buf, e); err != nil {
		_, _ = fmt.Fprint(w.out, err)
		return
	}
	_, _ = w.out.Write(buf.Data)
}
