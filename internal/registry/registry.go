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

// Package registry implements the resource manager: the namespace registry, the
// per-resource lock state machine and the acquire/register/release protocol.
package registry

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/benbjohnson/clock"

	rmerror "github.com/scailio-oss/resman/error"
	"github.com/scailio-oss/resman/internal/request"
	"github.com/scailio-oss/resman/logger"
	"github.com/scailio-oss/resman/manager"
	"github.com/scailio-oss/resman/resource"
)

var namespaceValidator = regexp.MustCompile(`^[\w-]+$`)
var resourceNameValidator = regexp.MustCompile(`^[^\s.]+$`)

type namespaceState struct {
	name    string
	factory resource.Factory

	mu        sync.Mutex // serialize all mutations of resources and their queues
	resources map[string]*resourceState
}

type resourceState struct {
	namespace string
	name      string
	fullName  string

	obj resource.Object
	// objLost is set when recreating the object failed, so the stale closed object is
	// never handed to a later waiter. The next grant attempt recreates it.
	objLost     bool
	currentLock resource.LockType
	activeUsers int
	queue       []*request.Request // FIFO, head at index 0
}

type managerImpl struct {
	logger      logger.Logger
	clock       clock.Clock
	metrics     *brokerMetrics
	autoRelease bool

	mu         sync.RWMutex // protects the namespaces map itself
	namespaces map[string]*namespaceState
}

// New creates a new Manager. The metrics set must not be shared with another Manager.
// autoRelease controls the default leak safety net on created references, see
// resource.Ref.SetAutoRelease.
func New(log logger.Logger, clk clock.Clock, set *metrics.Set, autoRelease bool) manager.Manager {
	m := &managerImpl{
		logger:      log,
		clock:       clk,
		metrics:     newBrokerMetrics(set),
		autoRelease: autoRelease,
		namespaces:  map[string]*namespaceState{},
	}
	set.NewGauge("resman_active_resources", func() float64 {
		return float64(m.activeResources())
	})
	return m
}

func (m *managerImpl) RegisterNamespace(namespace string, factory resource.Factory) error {
	if !namespaceValidator.MatchString(namespace) {
		return &rmerror.InvalidNamespaceError{Namespace: namespace}
	}

	// Fast path without the write lock.
	m.mu.RLock()
	_, ok := m.namespaces[namespace]
	m.mu.RUnlock()
	if ok {
		return &rmerror.NamespaceRegisteredError{Namespace: namespace}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check, a concurrent registration may have won.
	if _, ok := m.namespaces[namespace]; ok {
		return &rmerror.NamespaceRegisteredError{Namespace: namespace}
	}

	m.logger.Debug(context.Background(), "Registering namespace (namespace)", namespace)
	m.namespaces[namespace] = &namespaceState{
		name:      namespace,
		factory:   factory,
		resources: map[string]*resourceState{},
	}
	return nil
}

func (m *managerImpl) GetResourceStatus(namespace, name string) (resource.LockState, error) {
	if !resourceNameValidator.MatchString(name) {
		return resource.StateFree, &rmerror.InvalidResourceNameError{Name: name}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	nsObj, ok := m.namespaces[namespace]
	if !ok {
		return resource.StateFree, &rmerror.UnknownNamespaceError{Namespace: namespace}
	}

	nsObj.mu.Lock()
	defer nsObj.mu.Unlock()

	exists, err := nsObj.factory.ResourceExists(name)
	if err != nil {
		return resource.StateFree, err
	}
	if !exists {
		return resource.StateFree, &rmerror.ResourceDoesNotExistError{FullName: namespace + "." + name}
	}

	state, ok := nsObj.resources[name]
	if !ok {
		return resource.StateFree, nil
	}
	return resource.LockStateFromType(state.currentLock)
}

func (m *managerImpl) RegisterResource(namespace, name string, lockType resource.LockType,
	callback resource.Callback) (resource.Request, error) {
	if !resourceNameValidator.MatchString(name) {
		return nil, &rmerror.InvalidResourceNameError{Name: name}
	}
	if !lockType.Valid() {
		return nil, &rmerror.InvalidLockTypeError{LockType: lockType.String()}
	}

	req := request.New(m.logger, namespace, name, lockType, callback)
	m.logger.Debug(context.Background(), "Trying to register resource (fullName/lockType)",
		req.FullName(), lockType)
	m.metrics.requests.Inc()

	// Callbacks run only after the namespace mutex is released again.
	emits, err := m.register(namespace, name, req)
	for _, emit := range emits {
		emit()
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (m *managerImpl) register(namespace, name string, req *request.Request) ([]func(), error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nsObj, ok := m.namespaces[namespace]
	if !ok {
		return nil, &rmerror.UnknownNamespaceError{Namespace: namespace}
	}

	nsObj.mu.Lock()
	defer nsObj.mu.Unlock()

	if state, ok := nsObj.resources[name]; ok {
		if len(state.queue) == 0 && state.currentLock == resource.Shared &&
			req.LockType() == resource.Shared {
			state.activeUsers++
			m.logger.Debug(context.Background(), "Resource found in shared state and queue is "+
				"empty, joining current shared lock (fullName/activeUsers)",
				state.fullName, state.activeUsers)

			// A fresh request cannot have been processed yet.
			_ = req.Grant()
			m.metrics.grants.Inc()
			m.metrics.fastJoins.Inc()
			ref := m.newRef(state, req.ID())
			return []func(){func() { req.Emit(ref) }}, nil
		}

		state.queue = append(state.queue, req)
		m.logger.Debug(context.Background(), "Resource is currently locked, entering queue "+
			"(fullName/queueLen)", state.fullName, len(state.queue))
		return nil, nil
	}

	exists, err := nsObj.factory.ResourceExists(name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &rmerror.ResourceDoesNotExistError{FullName: req.FullName()}
	}

	// Note: creating the object while holding the namespace mutex serializes the whole
	// namespace. This keeps the grant protocol simple and has not been a bottleneck;
	// if this broker ever becomes one, it is here.
	obj, err := nsObj.factory.CreateResource(name, req.LockType())
	if err != nil {
		m.logger.Warn(context.Background(), "Resource factory failed to create resource, "+
			"canceling request (fullName/err)", req.FullName(), err)
		m.metrics.cancels.Inc()
		return []func(){func() {
			if cerr := req.Cancel(); cerr != nil {
				m.logger.Warn(context.Background(), "Could not cancel request after factory "+
					"failure (fullName/err)", req.FullName(), cerr)
			}
		}}, nil
	}

	state := &resourceState{
		namespace:   namespace,
		name:        name,
		fullName:    req.FullName(),
		obj:         obj,
		currentLock: req.LockType(),
		activeUsers: 1,
	}
	nsObj.resources[name] = state

	m.logger.Debug(context.Background(), "Resource is free, now locking (fullName/lockType)",
		state.fullName, req.LockType())
	_ = req.Grant()
	m.metrics.grants.Inc()
	ref := m.newRef(state, req.ID())
	return []func(){func() { req.Emit(ref) }}, nil
}

func (m *managerImpl) AcquireResource(ctx context.Context, namespace, name string,
	lockType resource.LockType, timeout time.Duration) (resource.Ref, error) {
	fullName := namespace + "." + name

	refChan := make(chan resource.Ref, 1)
	req, err := m.RegisterResource(namespace, name, lockType,
		func(_ resource.Request, ref resource.Ref) {
			refChan <- ref
		})
	if err != nil {
		return nil, err
	}

	var timeoutChan <-chan time.Time
	if timeout > 0 {
		timer := m.clock.Timer(timeout)
		defer timer.Stop()
		timeoutChan = timer.C
	}

	select {
	case <-req.Done():
	case <-timeoutChan:
	case <-ctx.Done():
	}

	if !req.Granted() {
		if cancelErr := req.Cancel(); cancelErr != nil {
			// We might have acquired the resource between the wait and the cancel. If the
			// request is canceled regardless, a third party canceled it.
			if req.Canceled() {
				return nil, &rmerror.AcquisitionFailedError{FullName: fullName}
			}
		} else {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			m.metrics.timeouts.Inc()
			return nil, &rmerror.RequestTimedOutError{FullName: fullName}
		}
	}

	// The grant callback delivers the reference, a cancellation delivers nil.
	ref := <-refChan
	if ref == nil {
		return nil, &rmerror.AcquisitionFailedError{FullName: fullName}
	}
	return ref, nil
}

func (m *managerImpl) ReleaseResource(namespace, name string) error {
	m.logger.Debug(context.Background(), "Trying to release resource (namespace/name)",
		namespace, name)

	// Callbacks run only after the namespace mutex is released again.
	emits, err := m.release(namespace, name)
	for _, emit := range emits {
		emit()
	}
	return err
}

func (m *managerImpl) release(namespace, name string) ([]func(), error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nsObj, ok := m.namespaces[namespace]
	if !ok {
		return nil, &rmerror.UnknownNamespaceError{Namespace: namespace}
	}

	nsObj.mu.Lock()
	defer nsObj.mu.Unlock()

	state, ok := nsObj.resources[name]
	if !ok {
		return nil, &rmerror.ResourceNotRegisteredError{FullName: namespace + "." + name}
	}

	state.activeUsers--
	m.logger.Debug(context.Background(), "Released resource (fullName/activeUsers)",
		state.fullName, state.activeUsers)

	if state.activeUsers > 0 {
		return nil, nil
	}

	var emits []func()

	// Grant the oldest grantable request.
	for {
		if len(state.queue) == 0 {
			m.closeObject(state)
			delete(nsObj.resources, name)
			m.logger.Debug(context.Background(), "No one is waiting for resource, clearing "+
				"records (fullName)", state.fullName)
			return emits, nil
		}

		req := state.queue[0]
		state.queue = state.queue[1:]

		if req.Canceled() {
			m.logger.Debug(context.Background(), "Request was canceled, ignoring it "+
				"(fullName/reqId)", req.FullName(), req.ID())
			continue
		}

		if err := m.switchLockType(nsObj, state, req.LockType()); err != nil {
			m.logger.Warn(context.Background(), "Resource factory failed to create resource, "+
				"canceling request (fullName/reqId/err)", req.FullName(), req.ID(), err)
			m.metrics.cancels.Inc()
			emits = append(emits, func() {
				if cerr := req.Cancel(); cerr != nil {
					m.logger.Warn(context.Background(), "Could not cancel request after lock "+
						"switch failure (fullName/err)", req.FullName(), cerr)
				}
			})
			continue
		}

		if err := req.Grant(); err != nil {
			// Lost the race against a concurrent cancel of this request.
			continue
		}
		ref := m.newRef(state, req.ID())
		emits = append(emits, func() { req.Emit(ref) })
		state.activeUsers++
		m.metrics.grants.Inc()
		m.logger.Debug(context.Background(), "Request was granted (fullName/reqId)",
			req.FullName(), req.ID())
		break
	}

	if state.currentLock == resource.Exclusive {
		return emits, nil
	}

	// The lock is shared now, keep granting all contiguous shared requests in order.
	for len(state.queue) > 0 {
		req := state.queue[0]

		if req.Canceled() {
			state.queue = state.queue[1:]
			continue
		}
		if req.LockType() == resource.Exclusive {
			break
		}

		state.queue = state.queue[1:]
		if err := req.Grant(); err != nil {
			continue
		}
		ref := m.newRef(state, req.ID())
		emits = append(emits, func() { req.Emit(ref) })
		state.activeUsers++
		m.metrics.grants.Inc()
		m.logger.Debug(context.Background(), "Request was granted (fullName/reqId/activeUsers)",
			req.FullName(), req.ID(), state.activeUsers)
	}

	return emits, nil
}

// switchLockType brings the resource object to the target lock mode. If the object
// cannot switch in place, it is closed and recreated by the factory. The caller must
// hold the namespace mutex.
func (m *managerImpl) switchLockType(nsObj *namespaceState, state *resourceState,
	target resource.LockType) error {
	needSwitch := state.currentLock != target || state.objLost
	state.currentLock = target

	if !needSwitch {
		return nil
	}
	if state.obj == nil && !state.objLost {
		// The factory produces no object for this resource, nothing to switch.
		return nil
	}

	if !state.objLost {
		if switcher, ok := state.obj.(resource.LockTypeSwitcher); ok {
			if err := switcher.SwitchLockType(target); err == nil {
				return nil
			} else {
				m.logger.Warn(context.Background(), "Lock type switch failed on resource, "+
					"falling back to object recreation (fullName/err)", state.fullName, err)
			}
		}
		m.closeObject(state)
	}

	obj, err := nsObj.factory.CreateResource(state.name, target)
	if err != nil {
		state.obj = nil
		state.objLost = true
		return err
	}
	state.obj = obj
	state.objLost = false
	return nil
}

// closeObject closes the wrapped object if it wants to be closed. Close failures are
// logged and swallowed, the resource is reclaimed regardless.
func (m *managerImpl) closeObject(state *resourceState) {
	closer, ok := state.obj.(resource.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		m.logger.Warn(context.Background(), "Could not close resource (fullName/err)",
			state.fullName, err)
	}
}

func (m *managerImpl) activeResources() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, nsObj := range m.namespaces {
		nsObj.mu.Lock()
		total += len(nsObj.resources)
		nsObj.mu.Unlock()
	}
	return total
}
