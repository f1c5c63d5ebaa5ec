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
	"context"
	"runtime"
	"sync"

	rmerror "github.com/scailio-oss/resman/error"
	"github.com/scailio-oss/resman/resource"
)

// resourceRef is the caller-facing handle to a granted resource. It borrows the wrapped
// object owned by the resource state and invalidates itself on release.
type resourceRef struct {
	mgr *managerImpl

	namespace string
	name      string
	fullName  string
	refID     string

	mu          sync.RWMutex // proxied calls take the read side, release the write side
	valid       bool
	autoRelease bool
	obj         resource.Object
}

// newRef creates a reference borrowing the current resource object. The caller must
// hold the namespace mutex.
func (m *managerImpl) newRef(state *resourceState, refID string) *resourceRef {
	r := &resourceRef{
		mgr:       m,
		namespace: state.namespace,
		name:      state.name,
		fullName:  state.fullName,
		refID:     refID,
		valid:     true,
		obj:       state.obj,
	}
	r.setAutoRelease(m.autoRelease)
	return r
}

func (r *resourceRef) Namespace() string {
	return r.namespace
}

func (r *resourceRef) Name() string {
	return r.name
}

func (r *resourceRef) FullName() string {
	return r.fullName
}

func (r *resourceRef) IsValid() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.valid
}

func (r *resourceRef) Use(fn func(obj resource.Object) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.valid {
		return &rmerror.ReferenceInvalidError{FullName: r.fullName}
	}
	return fn(r.obj)
}

func (r *resourceRef) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.obj = nil
	if !r.valid {
		r.mgr.logger.Warn(context.Background(), "Tried to re-release a resource, request "+
			"ignored (fullName/refId)", r.fullName, r.refID)
		return
	}

	r.valid = false
	runtime.SetFinalizer(r, nil)
	if err := r.mgr.ReleaseResource(r.namespace, r.name); err != nil {
		r.mgr.logger.Warn(context.Background(), "Could not release resource (fullName/refId/err)",
			r.fullName, r.refID, err)
	}
}

func (r *resourceRef) SetAutoRelease(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.valid {
		r.setAutoRelease(enabled)
	}
}

// setAutoRelease must be called with mu held (or before the ref escapes).
func (r *resourceRef) setAutoRelease(enabled bool) {
	r.autoRelease = enabled
	runtime.SetFinalizer(r, nil)
	if enabled {
		runtime.SetFinalizer(r, (*resourceRef).autoReleaseLeaked)
	}
}

func (r *resourceRef) Status() (resource.LockState, error) {
	return r.mgr.GetResourceStatus(r.namespace, r.name)
}

// autoReleaseLeaked is the leak-detection safety net, not the primary release path: it
// runs when a still-valid reference with auto-release enabled becomes unreachable. The
// release happens on a fresh goroutine, never inline, so the finalizer goroutine cannot
// block on the namespace mutex.
func (r *resourceRef) autoReleaseLeaked() {
	r.mu.RLock()
	leaked := r.valid && r.autoRelease
	r.mu.RUnlock()

	if !leaked {
		return
	}

	r.mgr.logger.Warn(context.Background(), "Resource reference was not properly released, "+
		"auto-releasing (fullName/refId)", r.fullName, r.refID)
	r.mgr.metrics.autoReleases.Inc()
	go r.Release()
}
