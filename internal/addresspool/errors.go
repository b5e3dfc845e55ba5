// Copyright 2020 Acnodal Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package addresspool

// ErrorKind classifies the handful of ordinary (non-programmer-error)
// failure modes this package surfaces.
type ErrorKind int

const (
	// ErrPoolOverlap means a new range partially overlaps an existing
	// pool; the pool was not installed.
	ErrPoolOverlap ErrorKind = iota
	// ErrPoolExhausted means lease acquisition found no free address
	// and the pool cannot grow any further.
	ErrPoolExhausted
)

// Error is the typed error this package returns for ordinary failure
// modes, so callers can errors.As instead of matching strings, while
// Error() still renders the exact wire-format failure text.
type Error struct {
	Kind ErrorKind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func errPoolOverlap() error {
	return &Error{Kind: ErrPoolOverlap, msg: "ERROR: partial overlap of addresspool"}
}

func errPoolExhausted() error {
	return &Error{Kind: ErrPoolExhausted, msg: "no free address in addresspool"}
}
