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

// Package resource contains the types shared between the resource manager and its
// callers: lock types, lock states, the factory contract and the request/reference
// handles.
package resource

import (
	"fmt"

	rmerror "github.com/scailio-oss/resman/error"
)

// LockType is the access mode a caller requests for a resource.
type LockType int

const (
	// Shared allows multiple concurrent holders.
	Shared LockType = iota
	// Exclusive allows a single holder.
	Exclusive
)

func (t LockType) String() string {
	switch t {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	default:
		return fmt.Sprintf("locktype(%d)", int(t))
	}
}

// Valid reports whether t is one of the known lock types.
func (t LockType) Valid() bool {
	return t == Shared || t == Exclusive
}

// LockState is the externally observable state of a resource.
type LockState int

const (
	// StateFree means no one currently holds the resource.
	StateFree LockState = iota
	// StateShared means one or more holders have shared access.
	StateShared
	// StateLocked means a single holder has exclusive access.
	StateLocked
)

func (s LockState) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateShared:
		return "shared"
	case StateLocked:
		return "locked"
	default:
		return fmt.Sprintf("lockstate(%d)", int(s))
	}
}

// LockStateFromType maps the lock type held on a resource to its observable state.
func LockStateFromType(t LockType) (LockState, error) {
	switch t {
	case Shared:
		return StateShared, nil
	case Exclusive:
		return StateLocked, nil
	default:
		return StateFree, &rmerror.InvalidLockTypeError{LockType: t.String()}
	}
}

// Object is the opaque value a factory produces for a resource. It may be nil for
// factories that only need named arbitration. The manager inspects it solely for the
// optional Closer and LockTypeSwitcher capabilities.
type Object any

// Closer is implemented by resource objects that want to be closed when the manager
// reclaims the resource.
type Closer interface {
	Close() error
}

// LockTypeSwitcher is implemented by resource objects that can switch their lock mode
// in place. Objects without this capability are closed and recreated by the factory
// when the lock mode changes.
type LockTypeSwitcher interface {
	SwitchLockType(lockType LockType) error
}

// Factory produces the resources of one namespace. The manager calls it while holding
// the namespace mutex, so implementations must not block indefinitely and must not call
// back into the manager for the same namespace.
type Factory interface {
	// ResourceExists reports whether a resource with that name is producible with this
	// factory.
	ResourceExists(name string) (bool, error)

	// CreateResource instantiates the resource. Called before the first user is
	// admitted, and again whenever the lock mode changes on an object that cannot
	// switch in place.
	CreateResource(name string, lockType LockType) (Object, error)
}

// SimpleFactory is a factory where every name exists and resources carry no object.
// Can be used when named arbitration alone is enough.
type SimpleFactory struct {
}

func (SimpleFactory) ResourceExists(string) (bool, error) {
	return true, nil
}

func (SimpleFactory) CreateResource(string, LockType) (Object, error) {
	return nil, nil
}

// RequestStatus is the lifecycle state of a request.
type RequestStatus int

const (
	StatusWaiting RequestStatus = iota
	StatusGranted
	StatusCanceled
)

func (s RequestStatus) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusGranted:
		return "granted"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Callback is invoked exactly once per request, on the goroutine that grants or cancels
// it and only after all manager-internal locks are released, so it may safely re-enter
// the manager, e.g. release the delivered reference. ref is nil when the request was
// canceled. Implementations must not block.
type Callback func(req Request, ref Ref)

// Request tracks one pending/granted/canceled ask for a lock mode on a resource.
type Request interface {
	// ID is the unique id of this request, also used as the reference id on grant.
	ID() string
	Namespace() string
	Name() string
	// FullName is "namespace.name".
	FullName() string
	LockType() LockType

	Status() RequestStatus
	// Granted reports whether the request left the waiting state by being granted.
	Granted() bool
	// Canceled reports whether the request left the waiting state by being canceled.
	Canceled() bool

	// Done returns a channel that is closed once the request leaves the waiting state.
	Done() <-chan struct{}

	// Cancel cancels a waiting request and invokes its callback with a nil reference.
	// Returns a RequestAlreadyProcessedError if the request was granted or canceled
	// before - callers racing a grant must treat that error as "it was actually
	// granted" after checking Canceled.
	Cancel() error
}

// Ref is a caller-held handle to a granted resource. Every grant produces exactly one
// Ref, and every Ref must be released exactly once. A Ref must not be shared across
// owners.
type Ref interface {
	Namespace() string
	Name() string
	// FullName is "namespace.name".
	FullName() string

	// IsValid reports whether this reference still points to a held resource.
	IsValid() bool

	// Use runs fn with the wrapped resource object while holding the reference's read
	// lock, so concurrent Use calls may proceed in parallel. Returns a
	// ReferenceInvalidError after the reference was released.
	Use(fn func(obj Object) error) error

	// Release releases the underlying resource and invalidates the reference. Releasing
	// an already released reference is a warned no-op.
	Release()

	// SetAutoRelease enables or disables the auto-release safety net that releases the
	// resource (with a warning) if the reference is discarded while still valid.
	// Enabled by default unless the manager was built with auto-release disabled.
	SetAutoRelease(enabled bool)

	// Status returns the current lock state of the referenced resource.
	Status() (LockState, error)
}
