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

package manager

import (
	"context"
	"time"

	"github.com/scailio-oss/resman/resource"
)

// Manager arbitrates shared/exclusive access to named, lazily-created resources on
// behalf of many concurrent callers. Resources are grouped into namespaces, each backed
// by one caller-supplied factory. Contending requests are queued FIFO per resource and
// granted asynchronously.
//
// All methods may be called concurrently from any number of goroutines.
type Manager interface {
	// RegisterNamespace registers a new namespace backed by the given factory. The
	// namespace name must consist of letters, digits, underscores and dashes. A
	// namespace lives for the lifetime of the manager.
	//
	// Returns an InvalidNamespaceError for a bad name and a NamespaceRegisteredError
	// if the namespace already exists.
	RegisterNamespace(namespace string, factory resource.Factory) error

	// RegisterResource registers to acquire a resource asynchronously.
	//
	// If the resource is free, it is created via the namespace factory and the request
	// is granted before RegisterResource returns. If the resource is held shared, no
	// one is queued and a shared lock is requested, the request joins the current
	// holders and is granted immediately. Otherwise the request is appended to the
	// resource's FIFO queue and granted once all requests ahead of it were served.
	//
	// The callback is invoked exactly once, with a reference on grant or with nil on
	// cancellation, on the granting/canceling goroutine and outside of all manager
	// locks.
	//
	// A factory creation failure cancels only this request: the returned handle is
	// already canceled and no error is returned. Validation failures return
	// InvalidResourceNameError, InvalidLockTypeError or UnknownNamespaceError; an
	// unknown resource returns a ResourceDoesNotExistError.
	RegisterResource(namespace, name string, lockType resource.LockType,
		callback resource.Callback) (resource.Request, error)

	// AcquireResource acquires a resource synchronously, blocking until the resource is
	// granted, the timeout elapses or ctx is done. A timeout of 0 means no timeout.
	//
	// On timeout or context cancellation the pending request is canceled and a
	// RequestTimedOutError (or the ctx error) is returned - except when the request was
	// concurrently granted, in which case the reference is returned instead.
	AcquireResource(ctx context.Context, namespace, name string, lockType resource.LockType,
		timeout time.Duration) (resource.Ref, error)

	// ReleaseResource releases one hold on the resource. When the last hold is
	// released, queued requests are granted in FIFO order; if the queue is empty the
	// resource object is closed and the resource becomes free.
	//
	// Callers normally release through resource.Ref.Release instead of calling this
	// directly.
	ReleaseResource(namespace, name string) error

	// GetResourceStatus returns the externally observable lock state of the resource:
	// StateFree if no one holds it, StateShared or StateLocked otherwise. Returns a
	// ResourceDoesNotExistError if the factory does not know the name.
	GetResourceStatus(namespace, name string) (resource.LockState, error)
}
