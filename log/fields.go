/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"github.com/ssgreg/logf"
)

// Field carries one strongly typed key-value pair attached to a log message.
type Field = logf.Field

// Error returns a Field holding an error under the "error" key.
var Error = logf.Error

// NamedError returns a Field holding an error under the given key.
var NamedError = logf.NamedError

// String returns a Field with the given key and string value.
var String = logf.String

// Int returns a Field with the given key and int value.
var Int = logf.Int

// Int64 returns a Field with the given key and int64 value.
var Int64 = logf.Int64

// Duration returns a Field with the given key and time.Duration value.
var Duration = logf.Duration

// Bool returns a Field with the given key and bool value.
var Bool = logf.Bool

// Time returns a Field with the given key and time.Time value.
var Time = logf.Time

// Any returns a Field with the given key and a value of an arbitrary type,
// choosing the most suitable representation for it.
var Any = logf.Any
