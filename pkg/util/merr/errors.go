// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Service related
	ErrServiceUnavailable          = newRelayError("service unavailable", 2, true)
	ErrServiceResourceInsufficient = newRelayError("service resource insufficient", 12, true)

	// Registry related
	ErrRegistryFull    = newRelayError("registry is full", 100, true)
	ErrNameTaken       = newRelayError("name already taken", 101, false)
	ErrNameInvalid     = newRelayError("invalid name", 102, false)
	ErrSessionNotFound = newRelayError("session not found", 103, false)

	// Session related
	ErrSessionClosed = newRelayError("session closed", 200, false)
	ErrSendQueueFull = newRelayError("send queue is full", 201, true)

	// Handshake related
	ErrHandshakeRejected = newRelayError("handshake rejected", 300, false)

	// IO related
	ErrIoFailed      = newRelayError("IO failed", 1001, false)
	ErrIoUnexpectEOF = newRelayError("unexpected EOF", 1002, true)

	// Parameter related
	ErrParameterInvalid = newRelayError("invalid parameter", 1100, false)
	ErrParameterMissing = newRelayError("missing parameter", 1101, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to relayError
	errUnexpected = newRelayError("unexpected error", (1<<16)-1, false)

	// General
	ErrOperationNotSupported = newRelayError("unsupported operation", 3000, false)
)

type relayError struct {
	msg       string
	retriable bool
	errCode   int32
}

func newRelayError(msg string, code int32, retriable bool) relayError {
	return relayError{
		msg:       msg,
		retriable: retriable,
		errCode:   code,
	}
}

func (e relayError) code() int32 {
	return e.errCode
}

func (e relayError) Error() string {
	return e.msg
}

func (e relayError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(relayError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
