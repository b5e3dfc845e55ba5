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

package identity

import (
	"fmt"
)

// ParseError reports that a textual identity failed to tokenize, or
// that an embedded IP/DN/hex literal inside it was invalid. Callers
// are expected to reject the offending configuration line.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed identity %q: %s", e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseError(text string, err error) error {
	return &ParseError{Text: text, Err: err}
}
