// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// jsonRecord is one line of JSONEmitter output.
type jsonRecord struct {
	Time  time.Time `json:"time"`
	Level Level     `json:"level"`
	PID   int       `json:"pid"`
	File  string    `json:"file,omitempty"`
	Line  int       `json:"line,omitempty"`
	Msg   string    `json:"msg"`
}

// MarshalJSON implements json.Marshaler.MarshalJSON. Levels are written as
// the lower case names accepted by ParseLevel.
func (l Level) MarshalJSON() ([]byte, error) {
	switch l {
	case Warning, Info, Debug:
		return strconv.AppendQuote(nil, lowerNames[l]), nil
	default:
		return nil, fmt.Errorf("unknown level %d", uint32(l))
	}
}

// UnmarshalJSON implements json.Unmarshaler.UnmarshalJSON. It accepts a level
// name or its number.
func (l *Level) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		lvl, err := ParseLevel(name)
		if err != nil {
			return err
		}
		*l = lvl
		return nil
	}
	var n uint32
	if err := json.Unmarshal(b, &n); err != nil || n > uint32(Debug) {
		return fmt.Errorf("unknown level %s", b)
	}
	*l = Level(n)
	return nil
}

var lowerNames = [...]string{Warning: "warning", Info: "info", Debug: "debug"}

// JSONEmitter writes each message as one JSON object carrying the calling
// file and line as separate fields.
type JSONEmitter struct {
	*Writer
}

var ownPID = os.Getpid()

// Emit implements Emitter.Emit.
func (e JSONEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	r := jsonRecord{
		Time:  timestamp,
		Level: level,
		PID:   ownPID,
		Msg:   fmt.Sprintf(format, v...),
	}
	r.File, r.Line = caller(depth + 1)
	b, err := json.Marshal(r)
	if err != nil {
		// Only an invalid level gets here.
		panic(err)
	}
	e.Writer.Write(b)
}
