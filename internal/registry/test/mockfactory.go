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

package test

import (
	"sync"

	"github.com/scailio-oss/resman/resource"
)

// MockObject is a resource object recording its lifecycle. Switchable controls whether
// it exposes the in-place lock type switch.
type MockObject struct {
	Mu          sync.Mutex
	Name        string
	LockType    resource.LockType
	CloseCount  int
	CloseErr    error
	SwitchCount int
	SwitchErr   error
}

func (o *MockObject) Close() error {
	o.Mu.Lock()
	defer o.Mu.Unlock()

	o.CloseCount++
	return o.CloseErr
}

// SwitchableObject additionally supports in-place lock type switching.
type SwitchableObject struct {
	MockObject
}

func (o *SwitchableObject) SwitchLockType(lockType resource.LockType) error {
	o.Mu.Lock()
	defer o.Mu.Unlock()

	o.SwitchCount++
	if o.SwitchErr != nil {
		return o.SwitchErr
	}
	o.LockType = lockType
	return nil
}

func NewMockFactory() *MockFactory {
	return &MockFactory{
		Missing:    map[string]bool{},
		CreateErr:  map[string]error{},
		SwitchErr:  map[string]error{},
		Switchable: true,
	}
}

// MockFactory is a scriptable resource factory. By default every name exists and
// creation succeeds with a switchable object.
type MockFactory struct {
	Mu sync.Mutex

	// Names that do not exist.
	Missing map[string]bool
	// Per-name creation error. Consumed errors stay scripted.
	CreateErr map[string]error
	// Per-name switch error configured on created objects.
	SwitchErr map[string]error
	// Whether created objects support in-place lock type switching.
	Switchable bool
	// ExistsErr is returned by ResourceExists for every name when set.
	ExistsErr error

	CreateCount int
	Created     []resource.Object
}

func (f *MockFactory) ResourceExists(name string) (bool, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()

	if f.ExistsErr != nil {
		return false, f.ExistsErr
	}
	return !f.Missing[name], nil
}

func (f *MockFactory) CreateResource(name string, lockType resource.LockType) (resource.Object, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()

	f.CreateCount++
	if err := f.CreateErr[name]; err != nil {
		return nil, err
	}

	if !f.Switchable {
		obj := &MockObject{Name: name, LockType: lockType}
		f.Created = append(f.Created, obj)
		return obj, nil
	}

	obj := &SwitchableObject{MockObject{Name: name, LockType: lockType, SwitchErr: f.SwitchErr[name]}}
	f.Created = append(f.Created, obj)
	return obj, nil
}
