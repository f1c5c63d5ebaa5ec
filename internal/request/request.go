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

// Package request implements the state machine for one lock request. A request starts
// waiting and transitions exactly once to granted or canceled; both transitions are
// terminal and rejected thereafter.
package request

import (
	"context"
	"sync"

	"github.com/google/uuid"

	rmerror "github.com/scailio-oss/resman/error"
	"github.com/scailio-oss/resman/logger"
	"github.com/scailio-oss/resman/resource"
)

type Request struct {
	logger logger.Logger

	id        string
	namespace string
	name      string
	fullName  string
	lockType  resource.LockType

	internalMu sync.Mutex // Serialize access to internal fields
	active     bool       // true while waiting
	canceled   bool
	callback   resource.Callback
	done       chan struct{}
}

// New creates a waiting request. The callback may be nil.
func New(logger logger.Logger, namespace, name string, lockType resource.LockType,
	callback resource.Callback) *Request {
	return &Request{
		logger:    logger,
		id:        uuid.NewString(),
		namespace: namespace,
		name:      name,
		fullName:  namespace + "." + name,
		lockType:  lockType,
		active:    true,
		callback:  callback,
		done:      make(chan struct{}),
	}
}

func (r *Request) ID() string {
	return r.id
}

func (r *Request) Namespace() string {
	return r.namespace
}

func (r *Request) Name() string {
	return r.name
}

func (r *Request) FullName() string {
	return r.fullName
}

func (r *Request) LockType() resource.LockType {
	return r.lockType
}

func (r *Request) Status() resource.RequestStatus {
	r.internalMu.Lock()
	defer r.internalMu.Unlock()

	switch {
	case r.canceled:
		return resource.StatusCanceled
	case !r.active:
		return resource.StatusGranted
	default:
		return resource.StatusWaiting
	}
}

func (r *Request) Granted() bool {
	r.internalMu.Lock()
	defer r.internalMu.Unlock()

	return !r.active && !r.canceled
}

func (r *Request) Canceled() bool {
	r.internalMu.Lock()
	defer r.internalMu.Unlock()

	return r.canceled
}

func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Grant moves the request out of the waiting state. The caller must emit the callback
// afterwards via Emit, outside of any manager lock.
func (r *Request) Grant() error {
	r.internalMu.Lock()
	defer r.internalMu.Unlock()

	if !r.active {
		r.logger.Warn(context.Background(), "Tried to grant a processed request (fullName/reqId)",
			r.fullName, r.id)
		return &rmerror.RequestAlreadyProcessedError{FullName: r.fullName}
	}

	r.active = false
	close(r.done)
	return nil
}

// Cancel cancels a waiting request and invokes its callback with a nil reference. The
// callback runs after the request's own lock is released again. Exactly one of
// Grant/Cancel succeeds when racing, the loser receives a RequestAlreadyProcessedError.
func (r *Request) Cancel() error {
	r.internalMu.Lock()

	if !r.active {
		r.internalMu.Unlock()
		r.logger.Warn(context.Background(), "Tried to cancel a processed request (fullName/reqId)",
			r.fullName, r.id)
		return &rmerror.RequestAlreadyProcessedError{FullName: r.fullName}
	}

	r.active = false
	r.canceled = true
	cb := r.callback
	r.callback = nil
	close(r.done)
	r.internalMu.Unlock()

	if cb != nil {
		r.emitWith(cb, nil)
	}
	return nil
}

// Emit invokes the callback with the given reference. Must be called exactly once after
// a successful Grant and only outside of manager locks.
func (r *Request) Emit(ref resource.Ref) {
	r.internalMu.Lock()
	cb := r.callback
	r.callback = nil
	r.internalMu.Unlock()

	if cb == nil {
		return
	}
	r.emitWith(cb, ref)
}

func (r *Request) emitWith(cb resource.Callback, ref resource.Ref) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn(context.Background(), "Request callback panicked (fullName/reqId/panic)",
				r.fullName, r.id, p)
		}
	}()
	cb(r, ref)
}
