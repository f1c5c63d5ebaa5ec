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

// Package resman provides an in-process namespaced resource/lock broker: it arbitrates
// shared/exclusive access to named, lazily-created resources on behalf of many
// concurrent callers, queues contending requests FIFO per resource and notifies callers
// asynchronously when access is granted.
package resman

import (
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/benbjohnson/clock"

	internallogger "github.com/scailio-oss/resman/internal/logger"
	"github.com/scailio-oss/resman/internal/registry"
	"github.com/scailio-oss/resman/logger"
	"github.com/scailio-oss/resman/manager"
)

// New creates a new resource Manager. Construct one per process at startup and pass it
// to all collaborators; tests construct isolated instances.
// options: Additional, optional options.
func New(options ...ManagerOption) manager.Manager {
	params := &ManagerParams{}
	for _, opt := range options {
		opt(params)
	}

	if params.logger == nil {
		params.logger = internallogger.Default()
	}
	if params.clock == nil {
		params.clock = clock.New()
	}
	if params.metricsSet == nil {
		params.metricsSet = metrics.NewSet()
	}

	return registry.New(params.logger, params.clock, params.metricsSet, !params.autoReleaseDisabled)
}

type ManagerParams struct {
	logger              logger.Logger
	clock               clock.Clock
	metricsSet          *metrics.Set
	autoReleaseDisabled bool
}

type ManagerOption func(params *ManagerParams)

// Use the given Logger instead of a default one
func WithLogger(logger logger.Logger) ManagerOption {
	return func(params *ManagerParams) {
		params.logger = logger
	}
}

// Use the given clock instead of the wall clock. The clock drives acquisition timeouts.
func WithClock(clock clock.Clock) ManagerOption {
	return func(params *ManagerParams) {
		params.clock = clock
	}
}

// Use the given metrics set instead of a fresh one. The manager registers its counters
// and gauges on this set, which therefore must not be shared with another manager.
// Pass a set to export the manager's metrics through the embedding program.
func WithMetricsSet(set *metrics.Set) ManagerOption {
	return func(params *ManagerParams) {
		params.metricsSet = set
	}
}

// Disables the leak-detection safety net on created references: a reference discarded
// without Release will then never release its resource in the background. Use this when
// all release paths are scope-bound anyway (e.g. deferred) and the finalizer cost is
// unwanted.
//
// See also resource.Ref.SetAutoRelease.
func WithAutoReleaseDisabled() ManagerOption {
	return func(params *ManagerParams) {
		params.autoReleaseDisabled = true
	}
}

// ComposeNamespace joins name parts into a namespace string, deterministically.
func ComposeNamespace(parts ...string) string {
	return strings.Join(parts, "_")
}
