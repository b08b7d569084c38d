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
	"context"
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrSessionNotFound("bob")
	errors.Wrap(err, "failed to whisper")
	s.ErrorIs(err, ErrSessionNotFound)
	s.Equal(Code(ErrSessionNotFound), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))
	s.Equal(errUnexpected.errCode, Code(errors.New("plain")))
	s.Equal(int32(0), Code(nil))

	sameCodeErr := newRelayError("new error", ErrSessionNotFound.errCode, false)
	s.True(sameCodeErr.Is(ErrSessionNotFound))
}

func (s *ErrSuite) TestWrap() {
	// Service 相关错误。
	s.ErrorIs(WrapErrServiceUnavailable("shutting down"), ErrServiceUnavailable)
	s.ErrorIs(WrapErrServiceResourceInsufficient("pool exhausted"), ErrServiceResourceInsufficient)

	// Registry 相关错误。
	s.ErrorIs(WrapErrRegistryFull(7, "admission"), ErrRegistryFull)
	s.ErrorIs(WrapErrNameTaken("alice"), ErrNameTaken)
	s.ErrorIs(WrapErrNameInvalid("al", "too short"), ErrNameInvalid)
	s.ErrorIs(WrapErrSessionNotFound(uint64(3)), ErrSessionNotFound)

	// Session 相关错误。
	s.ErrorIs(WrapErrSessionClosed(1), ErrSessionClosed)
	s.ErrorIs(WrapErrSendQueueFull(1, 16), ErrSendQueueFull)
	s.ErrorIs(WrapErrHandshakeRejected(ErrNameTaken), ErrHandshakeRejected)

	// IO 相关错误。
	s.ErrorIs(WrapErrIoFailed("conn", os.ErrClosed), ErrIoFailed)
	s.ErrorIs(WrapErrIoUnexpectEOF("conn", os.ErrClosed), ErrIoUnexpectEOF)
	s.NoError(WrapErrIoFailed("conn", nil))

	// 参数相关错误。
	s.ErrorIs(WrapErrParameterInvalid(8, 1, "bad capacity"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidRange(3, 31, 40, "name length"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidMsg("framing %s", "xml"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterMissing("addr"), ErrParameterMissing)

	s.ErrorIs(WrapErrOperationNotSupported("history"), ErrOperationNotSupported)
}

func (s *ErrSuite) TestFieldsInMessage() {
	err := WrapErrNameInvalid("a b", "contains whitespace")
	s.Equal("invalid name[name=a b]: contains whitespace", err.Error())

	err = WrapErrParameterInvalidRange(3, 31, 40)
	s.Contains(err.Error(), "40 out of range 3 <= value <= 31")
}

func (s *ErrSuite) TestRetryable() {
	s.True(IsRetryableErr(ErrRegistryFull))
	s.True(IsRetryableErr(errors.Wrap(WrapErrRegistryFull(2), "dial")))
	s.False(IsRetryableErr(ErrNameTaken))
	s.False(IsRetryableErr(errors.New("plain")))
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
}

func (s *ErrSuite) TestCombineWithNil() {
	err := errors.New("non-nil")

	err = Combine(nil, err)
	s.NotNil(err)
}

func (s *ErrSuite) TestCombineOnlyNil() {
	err := Combine(nil, nil)
	s.Nil(err)
}

func (s *ErrSuite) TestCombineCode() {
	err := Combine(WrapErrNameTaken("bob"), WrapErrRegistryFull(2))
	s.Equal(Code(ErrRegistryFull), Code(err))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
