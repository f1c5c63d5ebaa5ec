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

// Package guard adapts manager resources to a plain Acquire/Release lock pair, so the
// broker can back generic "acquire a set of named locks, release them all on exit"
// utilities used by transactional callers.
package guard

import (
	"context"

	"github.com/scailio-oss/resman/manager"
	"github.com/scailio-oss/resman/resource"
)

// Lock is a no-argument lock bound to one (namespace, name, mode) triple.
type Lock struct {
	mgr  manager.Manager
	ns   string
	name string
	mode resource.LockType
}

func NewLock(mgr manager.Manager, ns, name string, mode resource.LockType) *Lock {
	return &Lock{
		mgr:  mgr,
		ns:   ns,
		name: name,
		mode: mode,
	}
}

func (l *Lock) Namespace() string {
	return l.ns
}

func (l *Lock) Name() string {
	return l.name
}

func (l *Lock) Mode() resource.LockType {
	return l.mode
}

// Acquire blocks until the lock is held. The reference's auto-release is disabled since
// this Lock, not the reference, owns the release call.
func (l *Lock) Acquire() error {
	ref, err := l.mgr.AcquireResource(context.Background(), l.ns, l.name, l.mode, 0)
	if err != nil {
		return err
	}
	ref.SetAutoRelease(false)
	return nil
}

func (l *Lock) Release() error {
	return l.mgr.ReleaseResource(l.ns, l.name)
}
