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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	activityMetricSubsystem = "activity"
)

var (
	ActivityRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Subsystem: activityMetricSubsystem,
		Name:      "records_total",
		Help:      "写入活动日志的记录条数",
	})

	ActivityWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Subsystem: activityMetricSubsystem,
		Name:      "write_failures_total",
		Help:      "活动日志写入失败的次数",
	})
)

func registerActivityMetrics(r prometheus.Registerer) {
	r.MustRegister(ActivityRecords)
	r.MustRegister(ActivityWriteFailures)
}
