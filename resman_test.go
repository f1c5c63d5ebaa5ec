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

package resman

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scailio-oss/resman/resource"
)

func TestComposeNamespace(t *testing.T) {
	assert.Equal(t, "storage_sd1", ComposeNamespace("storage", "sd1"))
	assert.Equal(t, "a_b_c", ComposeNamespace("a", "b", "c"))
	assert.Equal(t, "single", ComposeNamespace("single"))
}

func TestEndToEnd(t *testing.T) {
	// GIVEN a manager with a metrics set to inspect afterwards
	set := metrics.NewSet()
	mgr := New(WithMetricsSet(set), WithAutoReleaseDisabled())
	require.NoError(t, mgr.RegisterNamespace(ComposeNamespace("storage", "sd1"),
		resource.SimpleFactory{}))

	ns := "storage_sd1"

	// WHEN two shared holders and a queued exclusive request interleave
	ref1, err := mgr.AcquireResource(context.Background(), ns, "vol1", resource.Shared,
		time.Second)
	require.NoError(t, err)
	ref2, err := mgr.AcquireResource(context.Background(), ns, "vol1", resource.Shared,
		time.Second)
	require.NoError(t, err)

	granted := make(chan resource.Ref, 1)
	req, err := mgr.RegisterResource(ns, "vol1", resource.Exclusive,
		func(_ resource.Request, ref resource.Ref) {
			granted <- ref
		})
	require.NoError(t, err)
	assert.Equal(t, resource.StatusWaiting, req.Status())

	ref1.Release()
	ref2.Release()

	// THEN the exclusive waiter is granted
	select {
	case ref3 := <-granted:
		require.NotNil(t, ref3)
		state, err := ref3.Status()
		assert.NoError(t, err)
		assert.Equal(t, resource.StateLocked, state)
		ref3.Release()
	case <-time.After(time.Second):
		require.Fail(t, "Timeout waiting for the exclusive grant")
	}

	state, err := mgr.GetResourceStatus(ns, "vol1")
	assert.NoError(t, err)
	assert.Equal(t, resource.StateFree, state)

	// The manager counters reflect the traffic.
	assert.Contains(t, dumpMetrics(set), "resman_grants_total 3")
}

func TestSimpleFactoryResourcesCarryNoObject(t *testing.T) {
	// GIVEN
	mgr := New()
	require.NoError(t, mgr.RegisterNamespace("ns", resource.SimpleFactory{}))

	// WHEN
	ref, err := mgr.AcquireResource(context.Background(), "ns", "r1", resource.Exclusive,
		time.Second)
	require.NoError(t, err)

	// THEN
	err = ref.Use(func(obj resource.Object) error {
		assert.Nil(t, obj, "Expected no wrapped object from the SimpleFactory")
		return nil
	})
	assert.NoError(t, err)
	ref.Release()
}

func dumpMetrics(set *metrics.Set) string {
	var buf bytes.Buffer
	set.WritePrometheus(&buf)
	return buf.String()
}
