/* Copyright 2020 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package broadcast

import (
	"github.com/Comcast/evbus/push"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Evaluation results.
const (
	ResultMatch   = "match"
	ResultNoMatch = "nomatch"
	ResultInvalid = "invalid"
	ResultFault   = "fault"
)

// Metrics holds the service's Prometheus metrics.
type Metrics struct {
	EventsReceived prometheus.Counter
	Evaluations    *prometheus.CounterVec
	Deliveries     *prometheus.CounterVec
	Connections    prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.  A nil
// reg gives metrics that aren't registered anywhere.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "evbus_events_received_total",
			Help: "Total number of events received for routing",
		}),
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evbus_filter_evaluations_total",
			Help: "Total number of stored filters evaluated against events",
		}, []string{"result"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evbus_deliveries_total",
			Help: "Total number of pushes to subscriber connections",
		}, []string{"status"}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "evbus_connections",
			Help: "Number of open subscriber connections",
		}),
	}
}

func (m *Metrics) evaluated(result string) {
	m.Evaluations.WithLabelValues(result).Inc()
}

func (m *Metrics) delivered(s push.Status) {
	m.Deliveries.WithLabelValues(s.String()).Inc()
}
