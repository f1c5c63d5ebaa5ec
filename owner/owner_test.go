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

package owner

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scailio-oss/resman"
	rmerror "github.com/scailio-oss/resman/error"
	"github.com/scailio-oss/resman/internal/registry/test"
	"github.com/scailio-oss/resman/manager"
	"github.com/scailio-oss/resman/resource"
)

const namespace = "testNs"

const timeoutDuration = 1 * time.Second

// testIdentity records the hook notifications it receives.
type testIdentity struct {
	id string

	Mu       sync.Mutex
	Acquired []string
	Released []string
}

func (i *testIdentity) ID() string {
	return i.id
}

func (i *testIdentity) ResourceAcquired(namespace, name string, _ resource.LockType) {
	i.Mu.Lock()
	defer i.Mu.Unlock()
	i.Acquired = append(i.Acquired, namespace+"."+name)
}

func (i *testIdentity) ResourceReleased(namespace, name string) {
	i.Mu.Lock()
	defer i.Mu.Unlock()
	i.Released = append(i.Released, namespace+"."+name)
}

func ownerSetup(t *testing.T) (manager.Manager, *test.MockFactory, *Owner, *testIdentity) {
	factory := test.NewMockFactory()
	mgr := resman.New()
	require.NoError(t, mgr.RegisterNamespace(namespace, factory))

	identity := &testIdentity{id: "owner1"}
	return mgr, factory, New(mgr, identity), identity
}

func TestAcquireAndReleaseAll(t *testing.T) {
	// GIVEN
	mgr, factory, o, identity := ownerSetup(t)

	// WHEN
	err1 := o.Acquire(namespace, "r1", resource.Exclusive, 0)
	err2 := o.Acquire(namespace, "r2", resource.Shared, 0)

	// THEN
	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.ElementsMatch(t, []string{namespace + ".r1", namespace + ".r2"}, identity.Acquired)

	state, _ := mgr.GetResourceStatus(namespace, "r1")
	assert.Equal(t, resource.StateLocked, state)

	// WHEN
	o.ReleaseAll()

	// THEN
	assert.ElementsMatch(t, []string{namespace + ".r1", namespace + ".r2"}, identity.Released)
	state, _ = mgr.GetResourceStatus(namespace, "r1")
	assert.Equal(t, resource.StateFree, state)
	state, _ = mgr.GetResourceStatus(namespace, "r2")
	assert.Equal(t, resource.StateFree, state)
	for _, obj := range factory.Created {
		assert.Equal(t, 1, obj.(*test.SwitchableObject).CloseCount, "Expected each object closed once")
	}
}

func TestReleaseAllTwice(t *testing.T) {
	// GIVEN
	_, factory, o, identity := ownerSetup(t)
	require.NoError(t, o.Acquire(namespace, "r1", resource.Exclusive, 0))

	// WHEN
	o.ReleaseAll()
	o.ReleaseAll()

	// THEN the second pass is a no-op
	assert.Equal(t, []string{namespace + ".r1"}, identity.Released, "Expected one release notification")
	assert.Equal(t, 1, factory.Created[0].(*test.SwitchableObject).CloseCount,
		"Expected the object closed exactly once")
}

func TestDoubleAcquire(t *testing.T) {
	// GIVEN
	_, _, o, _ := ownerSetup(t)
	require.NoError(t, o.Acquire(namespace, "r1", resource.Shared, 0))

	// WHEN the same owner acquires the same name again, even with a compatible lock type
	err := o.Acquire(namespace, "r1", resource.Shared, 0)

	// THEN
	var alreadyAcquired *rmerror.ResourceAlreadyAcquiredError
	require.True(t, errors.As(err, &alreadyAcquired), "Expected ResourceAlreadyAcquiredError")
	assert.Equal(t, "owner1", alreadyAcquired.OwnerID)

	o.ReleaseAll()
}

func TestAcquireTimeoutTranslation(t *testing.T) {
	// GIVEN a second owner holding the resource exclusively
	mgr, _, o, _ := ownerSetup(t)
	blocker := New(mgr, &testIdentity{id: "owner2"})
	require.NoError(t, blocker.Acquire(namespace, "r1", resource.Exclusive, 0))
	defer blocker.ReleaseAll()

	// WHEN
	err := o.Acquire(namespace, "r1", resource.Shared, 20*time.Millisecond)

	// THEN
	var timedOut *rmerror.ResourceTimeoutError
	assert.True(t, errors.As(err, &timedOut), "Expected ResourceTimeoutError")

	// A failed acquire must not leave a reservation behind.
	blocker.ReleaseAll()
	assert.NoError(t, o.Acquire(namespace, "r1", resource.Shared, timeoutDuration))
	o.ReleaseAll()
}

func TestAcquireUnknownResource(t *testing.T) {
	// GIVEN
	_, factory, o, _ := ownerSetup(t)
	factory.Missing["ghost"] = true

	// WHEN
	err := o.Acquire(namespace, "ghost", resource.Shared, 0)

	// THEN
	var notFound *rmerror.ResourceDoesNotExistError
	require.True(t, errors.As(err, &notFound), "Expected ResourceDoesNotExistError")
	assert.Equal(t, namespace+".ghost", notFound.FullName)
}

func TestAcquireBadNameAndUnknownNamespace(t *testing.T) {
	// GIVEN
	_, _, o, _ := ownerSetup(t)

	// WHEN / THEN
	err := o.Acquire(namespace, "bad name", resource.Shared, 0)
	var badName *rmerror.InvalidResourceNameError
	assert.True(t, errors.As(err, &badName), "Expected InvalidResourceNameError for a bad name")

	err = o.Acquire("unknownNs", "r1", resource.Shared, 0)
	assert.True(t, errors.As(err, &badName), "Expected InvalidResourceNameError for an unknown namespace")
}

func TestAcquireGenericErrorTranslation(t *testing.T) {
	// GIVEN a factory whose existence check fails
	_, factory, o, _ := ownerSetup(t)
	factory.ExistsErr = errors.New("testerror")

	// WHEN
	err := o.Acquire(namespace, "r1", resource.Shared, 0)

	// THEN
	var resErr *rmerror.ResourceError
	require.True(t, errors.As(err, &resErr), "Expected a generic ResourceError")
	assert.ErrorIs(t, err, factory.ExistsErr, "Expected the cause to be wrapped")
}

func TestTryAcquire(t *testing.T) {
	// GIVEN a second owner holding the resource exclusively
	mgr, _, o, _ := ownerSetup(t)
	blocker := New(mgr, &testIdentity{id: "owner2"})
	require.NoError(t, blocker.Acquire(namespace, "r1", resource.Exclusive, 0))

	// WHEN / THEN
	assert.False(t, o.TryAcquire(namespace, "r1", resource.Shared, 20*time.Millisecond),
		"Expected TryAcquire to report failure while blocked")

	blocker.ReleaseAll()

	assert.True(t, o.TryAcquire(namespace, "r1", resource.Shared, timeoutDuration),
		"Expected TryAcquire to succeed after the blocker left")
	o.ReleaseAll()
}

func TestConcurrentAcquireOfSameName(t *testing.T) {
	// GIVEN an owner and many goroutines racing for the same name
	_, _, o, _ := ownerSetup(t)

	var successes int32
	var group sync.WaitGroup
	var successMu sync.Mutex

	// WHEN
	for i := 0; i < 10; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			if o.Acquire(namespace, "r1", resource.Exclusive, timeoutDuration) == nil {
				successMu.Lock()
				successes++
				successMu.Unlock()
			}
		}()
	}
	group.Wait()

	// THEN the in-flight reservation makes all but one fail fast
	assert.Equal(t, int32(1), successes, "Expected exactly one acquisition to win")
	o.ReleaseAll()
}
