//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
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
//
package multierror

import (
	"bytes"
	"fmt"
)

// Error bundles multiple errors and makes them obey the error interface.
type Error struct {
	errs []error
}

func (e *Error) Error() string {
	buf := bytes.NewBuffer(nil)

	fmt.Fprintf(buf, "%d error(s) occurred:", len(e.errs))
	for _, err := range e.errs {
		fmt.Fprintf(buf, "\n%s", err)
	}
	return buf.String()
}

// Errors returns the bundled errors in the order they were appended.
func (e *Error) Errors() []error {
	return e.errs
}

// Len returns the number of bundled errors; nil-safe.
func (e *Error) Len() int {
	if e == nil {
		return 0
	}
	return len(e.errs)
}

// Append creates a new multierror.Error or appends the arguments to an existing one.
// err can be nil, or can be a non-multierror error. Nil errors in errs are skipped,
// and if nothing is left to report, err is returned unchanged.
func Append(err error, errs ...error) error {
	var nonNil []error
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
		}
	}
	if len(nonNil) == 0 {
		return err
	}
	if err == nil {
		return &Error{nonNil}
	}
	switch err := err.(type) {
	case *Error:
		err.errs = append(err.errs, nonNil...)
		return err
	default:
		return &Error{append([]error{err}, nonNil...)}
	}
}
