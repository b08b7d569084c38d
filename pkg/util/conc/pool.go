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

package conc

import (
	ants "github.com/panjf2000/ants/v2"

	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

// Pool 是基于 ants 的协程池，用于承载每条连接的会话协程。
type Pool struct {
	inner *ants.Pool
	opt   *poolOption
}

// NewPool 创建一个容量为 cap 的协程池，cap <= 0 时表示不限制容量。
func NewPool(cap int, opts ...PoolOption) *Pool {
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}

	if cap <= 0 {
		cap = -1
	}
	pool, err := ants.NewPool(cap, opt.antsOptions()...)
	if err != nil {
		panic(err)
	}

	return &Pool{
		inner: pool,
		opt:   opt,
	}
}

// Spawn 提交一个任务。协程池拒绝任务时（例如非阻塞模式下已满）直接返回错误。
func (pool *Pool) Spawn(fn func()) error {
	if err := pool.inner.Submit(fn); err != nil {
		return merr.WrapErrServiceResourceInsufficient(err.Error(), "spawn task in pool")
	}
	return nil
}

// Cap 返回池容量。
func (pool *Pool) Cap() int {
	return pool.inner.Cap()
}

// Running 返回当前正在运行的任务数。
func (pool *Pool) Running() int {
	return pool.inner.Running()
}

// Release 释放协程池，已提交的任务继续执行完毕。
func (pool *Pool) Release() {
	pool.inner.Release()
}
