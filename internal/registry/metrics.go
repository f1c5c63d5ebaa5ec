/*
 *    Copyright 2022 scailio GmbH
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

package registry

import (
	"github.com/VictoriaMetrics/metrics"
)

// brokerMetrics are registered on the per-manager metrics set, so multiple manager
// instances in one process stay isolated.
type brokerMetrics struct {
	requests     *metrics.Counter
	grants       *metrics.Counter
	fastJoins    *metrics.Counter
	cancels      *metrics.Counter
	timeouts     *metrics.Counter
	autoReleases *metrics.Counter
}

func newBrokerMetrics(set *metrics.Set) *brokerMetrics {
	return &brokerMetrics{
		requests:     set.NewCounter("resman_requests_total"),
		grants:       set.NewCounter("resman_grants_total"),
		fastJoins:    set.NewCounter("resman_fast_joins_total"),
		cancels:      set.NewCounter("resman_cancels_total"),
		timeouts:     set.NewCounter("resman_timeouts_total"),
		autoReleases: set.NewCounter("resman_auto_releases_total"),
	}
}
