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

// Package owner tracks all resource references held by one logical caller, e.g. one
// task, and supports releasing them in bulk when the caller finishes.
package owner

import (
	"context"
	"errors"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	rmerror "github.com/scailio-oss/resman/error"
	internallogger "github.com/scailio-oss/resman/internal/logger"
	"github.com/scailio-oss/resman/logger"
	"github.com/scailio-oss/resman/manager"
	"github.com/scailio-oss/resman/resource"
)

// Identity identifies the logical caller an Owner acquires resources for.
type Identity interface {
	ID() string
}

// AcquiredNotifier is implemented by identities that want to be notified after each
// successful acquisition.
type AcquiredNotifier interface {
	ResourceAcquired(namespace, name string, lockType resource.LockType)
}

// ReleasedNotifier is implemented by identities that want to be notified after each
// release.
type ReleasedNotifier interface {
	ResourceReleased(namespace, name string)
}

// heldSlot reserves a full name in the held map while the acquisition is in flight, so
// a concurrent double-acquire of the same name is detected before blocking.
type heldSlot struct {
	ref resource.Ref
}

type Owner struct {
	mgr      manager.Manager
	identity Identity
	logger   logger.Logger

	held *xsync.MapOf[string, *heldSlot]
}

type Option func(o *Owner)

// WithLogger uses the given Logger instead of the default one.
func WithLogger(log logger.Logger) Option {
	return func(o *Owner) {
		o.logger = log
	}
}

// New creates an Owner acquiring resources from mgr on behalf of identity.
func New(mgr manager.Manager, identity Identity, options ...Option) *Owner {
	o := &Owner{
		mgr:      mgr,
		identity: identity,
		held:     xsync.NewMapOf[string, *heldSlot](),
	}
	for _, opt := range options {
		opt(o)
	}
	if o.logger == nil {
		o.logger = internallogger.Default()
	}
	return o
}

// Acquire acquires a resource on behalf of this owner and records the reference under
// its full name. A timeout of 0 means no timeout.
//
// Failures are translated into the owner-facing error taxonomy: acquiring a name this
// owner already holds returns a ResourceAlreadyAcquiredError, a timeout returns a
// ResourceTimeoutError, an unknown resource a ResourceDoesNotExistError, a bad name or
// namespace an InvalidResourceNameError and anything else a generic ResourceError.
func (o *Owner) Acquire(namespace, name string, lockType resource.LockType,
	timeout time.Duration) error {
	fullName := namespace + "." + name

	if _, loaded := o.held.LoadOrStore(fullName, &heldSlot{}); loaded {
		return &rmerror.ResourceAlreadyAcquiredError{FullName: fullName, OwnerID: o.identity.ID()}
	}

	ref, err := o.mgr.AcquireResource(context.Background(), namespace, name, lockType, timeout)
	if err != nil {
		o.held.Delete(fullName)
		return o.translate(fullName, name, err)
	}

	o.held.Store(fullName, &heldSlot{ref: ref})
	if notifier, ok := o.identity.(AcquiredNotifier); ok {
		notifier.ResourceAcquired(namespace, name, lockType)
	}
	return nil
}

// TryAcquire is Acquire with failures swallowed: they are logged and reported as false.
func (o *Owner) TryAcquire(namespace, name string, lockType resource.LockType,
	timeout time.Duration) bool {
	if err := o.Acquire(namespace, name, lockType, timeout); err != nil {
		o.logger.Debug(context.Background(), "Owner could not acquire resource "+
			"(owner/namespace/name/err)", o.identity.ID(), namespace, name, err)
		return false
	}
	return true
}

func (o *Owner) translate(fullName, name string, err error) error {
	var timedOut *rmerror.RequestTimedOutError
	if errors.As(err, &timedOut) {
		o.logger.Debug(context.Background(), "Request timed out (owner/fullName)",
			o.identity.ID(), fullName)
		return &rmerror.ResourceTimeoutError{FullName: fullName}
	}

	var unknownNs *rmerror.UnknownNamespaceError
	var badName *rmerror.InvalidResourceNameError
	if errors.As(err, &unknownNs) || errors.As(err, &badName) {
		o.logger.Debug(context.Background(), "Request could not be processed "+
			"(owner/fullName/err)", o.identity.ID(), fullName, err)
		return &rmerror.InvalidResourceNameError{Name: name}
	}

	var notFound *rmerror.ResourceDoesNotExistError
	if errors.As(err, &notFound) {
		o.logger.Debug(context.Background(), "Resource does not exist (owner/fullName)",
			o.identity.ID(), fullName)
		return &rmerror.ResourceDoesNotExistError{FullName: fullName}
	}

	o.logger.Warn(context.Background(), "Unexpected error while owner tried to acquire "+
		"resource (owner/fullName/err)", o.identity.ID(), fullName, err)
	return &rmerror.ResourceError{FullName: fullName, Cause: err}
}

// ReleaseAll releases every reference held by this owner. References that were already
// released elsewhere are skipped with a warning.
func (o *Owner) ReleaseAll() {
	o.logger.Debug(context.Background(), "Owner releasing all resources (owner)",
		o.identity.ID())

	o.held.Range(func(fullName string, _ *heldSlot) bool {
		o.release(fullName)
		return true
	})
}

func (o *Owner) release(fullName string) {
	slot, loaded := o.held.LoadAndDelete(fullName)
	if !loaded {
		return
	}

	ref := slot.ref
	if ref == nil {
		// Acquisition still in flight, nothing to release here.
		return
	}

	if !ref.IsValid() {
		o.logger.Warn(context.Background(), "Tried to release an already released resource "+
			"(owner/fullName)", o.identity.ID(), fullName)
		return
	}

	ref.Release()
	if notifier, ok := o.identity.(ReleasedNotifier); ok {
		notifier.ResourceReleased(ref.Namespace(), ref.Name())
	}
}
