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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// chatNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	chatNamespace = "chat"

	relayMetricSubsystem = "relay"

	transportLabelName = "transport"
	resultLabelName    = "result"
	kindLabelName      = "kind"
)

// 准入结果标签值。
const (
	AdmissionAccepted      = "accepted"
	AdmissionRejectedFull  = "rejected_full"
	AdmissionRejectedName  = "rejected_name"
	AdmissionHandshakeFail = "handshake_failed"
)

// 消息类别标签值。
const (
	MessageBroadcast = "broadcast"
	MessageWhisper   = "whisper"
	MessageList      = "list"
)

var (
	registerOnce sync.Once

	ConnectedSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: chatNamespace,
		Subsystem: relayMetricSubsystem,
		Name:      "connected_sessions",
		Help:      "当前已注册的会话数量",
	})

	AcceptedConnections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Subsystem: relayMetricSubsystem,
		Name:      "accepted_connections_total",
		Help:      "监听器接受的连接总数",
	}, []string{transportLabelName})

	Admissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Subsystem: relayMetricSubsystem,
		Name:      "admissions_total",
		Help:      "准入握手的结果计数",
	}, []string{resultLabelName})

	RoutedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Subsystem: relayMetricSubsystem,
		Name:      "routed_messages_total",
		Help:      "按类别统计的已路由消息数",
	}, []string{kindLabelName})

	SendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Subsystem: relayMetricSubsystem,
		Name:      "send_failures_total",
		Help:      "投递到会话发送队列失败的次数",
	})

	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标，多次调用只生效一次。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(ConnectedSessions)
		r.MustRegister(AcceptedConnections)
		r.MustRegister(Admissions)
		r.MustRegister(RoutedMessages)
		r.MustRegister(SendFailures)
		registerActivityMetrics(r)
		metricRegisterer = r
	})
}
