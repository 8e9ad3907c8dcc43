/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-limitkit/log"
)

// RecordedEntry is a single captured log entry.
type RecordedEntry struct {
	LoggerName string
	Fields     []log.Field
	Level      log.Level
	Time       time.Time
	Text       string
}

// FindField looks a field up in the entry by its key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for _, field := range re.Fields {
		if field.Key == key {
			return &field, true
		}
	}
	return nil, false
}

// Recorder is a log.FieldLogger that keeps every logged entry in memory
// so tests can assert on what was logged.
type Recorder struct {
	*log.LogfAdapter
	writer *captureWriter
}

// NewRecorder returns a Recorder that captures entries of all levels.
func NewRecorder() *Recorder {
	w := &captureWriter{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, w)}, w}
}

// With returns a new Recorder with the given additional fields.
// Captured entries are shared with the parent.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fs...).(*log.LogfAdapter), r.writer}
}

// WithLevel returns a new Recorder with an additional level check.
// Messages below both the given and the previously set level are ignored
// ("debug" is the minimal level, "error" is the maximal one),
// so the level may effectively only be raised.
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), r.writer}
}

// Entries returns a copy of all captured entries.
func (r *Recorder) Entries() []RecordedEntry {
	r.writer.RLock()
	defer r.writer.RUnlock()
	return append([]RecordedEntry{}, r.writer.entries...)
}

// FindEntry looks a captured entry up by its message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(entry RecordedEntry) bool {
		return entry.Text == msg
	})
}

// FindEntryByFilter returns the first captured entry the filter accepts.
func (r *Recorder) FindEntryByFilter(filter func(entry RecordedEntry) bool) (RecordedEntry, bool) {
	r.writer.RLock()
	defer r.writer.RUnlock()
	for _, entry := range r.writer.entries {
		if filter(entry) {
			return entry, true
		}
	}
	return RecordedEntry{}, false
}

// FindAllEntriesByFilter returns all captured entries the filter accepts.
func (r *Recorder) FindAllEntriesByFilter(filter func(entry RecordedEntry) bool) []RecordedEntry {
	r.writer.RLock()
	defer r.writer.RUnlock()
	var found []RecordedEntry
	for _, entry := range r.writer.entries {
		if filter(entry) {
			found = append(found, entry)
		}
	}
	return found
}

// Reset drops all captured entries.
func (r *Recorder) Reset() {
	r.writer.Lock()
	r.writer.entries = nil
	r.writer.Unlock()
}

type captureWriter struct {
	sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic
func (w *captureWriter) WriteEntry(e logf.Entry) {
	w.Lock()
	defer w.Unlock()

	fields := append([]log.Field{}, e.Fields...)
	fields = append(fields, e.DerivedFields...)
	w.entries = append(w.entries, RecordedEntry{
		LoggerName: e.LoggerName,
		Fields:     fields,
		Level:      levelFromLogf(e.Level),
		Time:       e.Time,
		Text:       e.Text,
	})
}

func levelFromLogf(value logf.Level) log.Level {
	switch value {
	case logf.LevelError:
		return log.LevelError
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelInfo:
		return log.LevelInfo
	case logf.LevelDebug:
		return log.LevelDebug
	}
	return log.LevelInfo
}
