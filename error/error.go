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

// Package error contains the error types returned by the resource manager.
package error

import (
	"fmt"
)

// InvalidNamespaceError is returned when a namespace name does not match the allowed
// pattern (letters, digits, underscore, dash).
type InvalidNamespaceError struct {
	Namespace string
}

func (e *InvalidNamespaceError) Error() string {
	return fmt.Sprintf("invalid namespace name %q", e.Namespace)
}

// NamespaceRegisteredError is returned when registering a namespace that is already
// registered with this manager.
type NamespaceRegisteredError struct {
	Namespace string
}

func (e *NamespaceRegisteredError) Error() string {
	return fmt.Sprintf("namespace %q already registered", e.Namespace)
}

// UnknownNamespaceError is returned when an operation references a namespace that was
// never registered with this manager.
type UnknownNamespaceError struct {
	Namespace string
}

func (e *UnknownNamespaceError) Error() string {
	return fmt.Sprintf("namespace %q is not registered with this manager", e.Namespace)
}

// InvalidResourceNameError is returned when a resource name contains whitespace or a
// dot, or is empty.
type InvalidResourceNameError struct {
	Name string
}

func (e *InvalidResourceNameError) Error() string {
	return fmt.Sprintf("invalid resource name %q", e.Name)
}

// InvalidLockTypeError is returned when a lock type outside of Shared/Exclusive is used.
type InvalidLockTypeError struct {
	LockType string
}

func (e *InvalidLockTypeError) Error() string {
	return fmt.Sprintf("invalid lock type %v", e.LockType)
}

// ResourceDoesNotExistError is returned when the namespace factory reports that no
// resource with the requested name is producible.
type ResourceDoesNotExistError struct {
	FullName string
}

func (e *ResourceDoesNotExistError) Error() string {
	return fmt.Sprintf("no such resource %q", e.FullName)
}

// RequestAlreadyProcessedError is returned when granting or canceling a request that
// already left the waiting state. This always indicates a lost race or a caller bug,
// never normal control flow.
type RequestAlreadyProcessedError struct {
	FullName string
}

func (e *RequestAlreadyProcessedError) Error() string {
	return fmt.Sprintf("request for %q was already processed", e.FullName)
}

// RequestTimedOutError is returned by a synchronous acquire that exceeded its deadline
// without being granted. The underlying request has been canceled.
type RequestTimedOutError struct {
	FullName string
}

func (e *RequestTimedOutError) Error() string {
	return fmt.Sprintf("request timed out, could not acquire resource %q", e.FullName)
}

// AcquisitionFailedError is returned by a synchronous acquire whose request was canceled
// by a third party while the acquire was waiting.
type AcquisitionFailedError struct {
	FullName string
}

func (e *AcquisitionFailedError) Error() string {
	return fmt.Sprintf("could not acquire resource %q, request was canceled", e.FullName)
}

// ReferenceInvalidError is returned when using a reference after it was released.
type ReferenceInvalidError struct {
	FullName string
}

func (e *ReferenceInvalidError) Error() string {
	return fmt.Sprintf("reference to %q is no longer valid", e.FullName)
}

// ResourceNotRegisteredError is returned when releasing a resource that is currently
// free, i.e. has no active users.
type ResourceNotRegisteredError struct {
	FullName string
}

func (e *ResourceNotRegisteredError) Error() string {
	return fmt.Sprintf("resource %q is not currently registered", e.FullName)
}

// ResourceAlreadyAcquiredError is returned when an owner acquires a resource it already
// holds. Acquiring the same lock twice through one owner is a usage bug, not a refcount
// bump.
type ResourceAlreadyAcquiredError struct {
	FullName string
	OwnerID  string
}

func (e *ResourceAlreadyAcquiredError) Error() string {
	return fmt.Sprintf("resource %q is already acquired by owner %q", e.FullName, e.OwnerID)
}

// ResourceTimeoutError is the owner-level translation of a timed out acquisition.
type ResourceTimeoutError struct {
	FullName string
}

func (e *ResourceTimeoutError) Error() string {
	return fmt.Sprintf("timed out acquiring resource %q", e.FullName)
}

// ResourceError is the owner-level translation of any acquisition failure that has no
// more specific type.
type ResourceError struct {
	FullName string
	Cause    error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("could not acquire resource %q: %v", e.FullName, e.Cause)
}

func (e *ResourceError) Unwrap() error {
	return e.Cause
}
