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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/scailio-oss/resman"
	"github.com/scailio-oss/resman/resource"
)

// domainFactory produces one lock object per storage domain. The manager never knows
// what a "storage domain" is, it only arbitrates access by name.
type domainFactory struct {
}

func (domainFactory) ResourceExists(name string) (bool, error) {
	// Whatever lookup your domain needs, e.g. check the domain is attached.
	return true, nil
}

func (domainFactory) CreateResource(name string, lockType resource.LockType) (resource.Object, error) {
	return &domainLock{name: name, lockType: lockType}, nil
}

type domainLock struct {
	name     string
	lockType resource.LockType
}

func (d *domainLock) Close() error {
	fmt.Printf("closing lock on domain %v\n", d.name)
	return nil
}

func main() {
	mgr := resman.New()

	ns := resman.ComposeNamespace("storage", "domains")
	if err := mgr.RegisterNamespace(ns, domainFactory{}); err != nil {
		fmt.Printf("Could not register namespace: %v\n", err)
		return
	}

	// Acquire exclusive access to domain 'dom1', waiting up to 10 seconds.
	ref, err := mgr.AcquireResource(context.Background(), ns, "dom1", resource.Exclusive,
		10*time.Second)
	if err != nil {
		fmt.Printf("Could not acquire: %v\n", err)
		return
	}

	err = ref.Use(func(obj resource.Object) error {
		lock := obj.(*domainLock)
		fmt.Printf("holding %v as %v\n", lock.name, lock.lockType)
		return nil
	})
	if err != nil {
		fmt.Printf("Could not use reference: %v\n", err)
		return
	}

	// Meanwhile, a second shared request on the same domain would queue up and be
	// granted asynchronously once the exclusive reference above is released.
	req, err := mgr.RegisterResource(ns, "dom1", resource.Shared,
		func(req resource.Request, ref resource.Ref) {
			if ref == nil {
				fmt.Printf("request %v was canceled\n", req.ID())
				return
			}
			fmt.Printf("request %v was granted\n", req.ID())
			ref.Release()
		})
	if err != nil {
		fmt.Printf("Could not register: %v\n", err)
		return
	}

	ref.Release()
	<-req.Done()
}
