/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements. See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License. You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package routing

import (
	"context"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/stretchr/testify/assert"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/storage"
)

type recordingDestination struct {
	name      string
	delivered [][]*cdc.ChangeEvent
	failures  int
}

func (rd *recordingDestination) Start() error {
	return nil
}

func (rd *recordingDestination) Stop() error {
	return nil
}

func (rd *recordingDestination) Name() string {
	return rd.name
}

func (rd *recordingDestination) Deliver(
	_ context.Context, events []*cdc.ChangeEvent,
) error {

	if rd.failures > 0 {
		rd.failures--
		return errors.Errorf("transient failure")
	}
	rd.delivered = append(rd.delivered, events)
	return nil
}

func testEvent(
	collection string, operation cdc.Operation, sequence uint64,
) *cdc.ChangeEvent {

	return &cdc.ChangeEvent{
		ID:         "evt",
		Operation:  operation,
		Collection: collection,
		DocumentID: "doc",
		Timestamp:  time.Now(),
		Sequence:   sequence,
	}
}

func routerConfig() *spiconfig.Config {
	c := &spiconfig.Config{}
	c.Router.MaxRetries = 1
	c.Router.CircuitBreakerThreshold = 2
	c.Router.CircuitBreakerReset = 50 * time.Millisecond
	return c
}

func Test_Router_Propagates_To_All_Destinations(
	t *testing.T,
) {

	first := &recordingDestination{name: "first"}
	second := &recordingDestination{name: "second"}

	router, err := NewRouter(routerConfig(), first, second)
	assert.NoError(t, err)

	result, err := router.Propagate(context.Background(), []*cdc.ChangeEvent{
		testEvent("orders", cdc.OperationInsert, 1),
		testEvent("orders", cdc.OperationUpdate, 2),
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, result.Delivered["first"])
	assert.Equal(t, 2, result.Delivered["second"])
	assert.Equal(t, 4, result.TotalDelivered)
	assert.False(t, result.PartialFailure)
}

func Test_Router_Reports_Partial_Failure(
	t *testing.T,
) {

	healthy := &recordingDestination{name: "healthy"}
	broken := &recordingDestination{name: "broken", failures: 100}

	router, err := NewRouter(routerConfig(), healthy, broken)
	assert.NoError(t, err)

	result, err := router.Propagate(context.Background(), []*cdc.ChangeEvent{
		testEvent("orders", cdc.OperationInsert, 1),
	})
	assert.NoError(t, err)
	assert.True(t, result.PartialFailure)
	assert.Equal(t, 1, result.Delivered["healthy"])
	assert.Error(t, result.Errors["broken"])
	assert.Equal(t, 1, len(healthy.delivered))
}

func Test_Router_Retries_Transient_Failures(
	t *testing.T,
) {

	flaky := &recordingDestination{name: "flaky", failures: 1}

	router, err := NewRouter(routerConfig(), flaky)
	assert.NoError(t, err)

	result, err := router.Propagate(context.Background(), []*cdc.ChangeEvent{
		testEvent("orders", cdc.OperationInsert, 1),
	})
	assert.NoError(t, err)
	assert.False(t, result.PartialFailure)
	assert.Equal(t, 1, len(flaky.delivered))
}

func Test_Router_Circuit_Opens_And_Recovers(
	t *testing.T,
) {

	broken := &recordingDestination{name: "broken", failures: 100}

	router, err := NewRouter(routerConfig(), broken)
	assert.NoError(t, err)

	events := []*cdc.ChangeEvent{testEvent("orders", cdc.OperationInsert, 1)}

	// threshold is two consecutive failed propagations
	for i := 0; i < 2; i++ {
		result, err := router.Propagate(context.Background(), events)
		assert.NoError(t, err)
		assert.True(t, result.PartialFailure)
	}
	assert.True(t, router.destinations[0].breaker.isOpen())

	// while open the delivery fails fast without an attempt
	remaining := broken.failures
	result, err := router.Propagate(context.Background(), events)
	assert.NoError(t, err)
	assert.True(t, result.PartialFailure)
	assert.Equal(t, remaining, broken.failures)

	// after the reset window the circuit closes again
	time.Sleep(60 * time.Millisecond)
	broken.failures = 0
	result, err = router.Propagate(context.Background(), events)
	assert.NoError(t, err)
	assert.False(t, result.PartialFailure)
}

func Test_Router_Transformers_Run_In_Order(
	t *testing.T,
) {

	sink := &recordingDestination{name: "sink"}

	router, err := NewRouter(routerConfig(), sink)
	assert.NoError(t, err)

	router.RegisterTransformer(func(events []*cdc.ChangeEvent) ([]*cdc.ChangeEvent, error) {
		for _, event := range events {
			event.Source = "first"
		}
		return events, nil
	})
	router.RegisterTransformer(func(events []*cdc.ChangeEvent) ([]*cdc.ChangeEvent, error) {
		for _, event := range events {
			event.Source += "+second"
		}
		return events, nil
	})

	_, err = router.Propagate(context.Background(), []*cdc.ChangeEvent{
		testEvent("orders", cdc.OperationInsert, 1),
	})
	assert.NoError(t, err)
	assert.Equal(t, "first+second", sink.delivered[0][0].Source)
}

func Test_Router_Filter_Drops_Non_Matching_Events(
	t *testing.T,
) {

	sink := &recordingDestination{name: "sink"}

	c := routerConfig()
	c.Router.Filters = map[string]spiconfig.EventFilterConfig{
		"inserts_only": {
			Condition: `operation == "INSERT"`,
		},
	}

	router, err := NewRouter(c, sink)
	assert.NoError(t, err)

	result, err := router.Propagate(context.Background(), []*cdc.ChangeEvent{
		testEvent("orders", cdc.OperationInsert, 1),
		testEvent("orders", cdc.OperationDelete, 2),
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Delivered["sink"])
	assert.Equal(t, 1, len(sink.delivered[0]))
}

func Test_Router_Filter_Scoped_To_Collections(
	t *testing.T,
) {

	sink := &recordingDestination{name: "sink"}

	c := routerConfig()
	c.Router.Filters = map[string]spiconfig.EventFilterConfig{
		"orders_inserts": {
			Collections: []string{"orders"},
			Condition:   `operation == "INSERT"`,
		},
	}

	router, err := NewRouter(c, sink)
	assert.NoError(t, err)

	result, err := router.Propagate(context.Background(), []*cdc.ChangeEvent{
		testEvent("orders", cdc.OperationDelete, 1),
		testEvent("users", cdc.OperationDelete, 2),
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Delivered["sink"])
	assert.Equal(t, "users", sink.delivered[0][0].Collection)
}

func Test_Router_Buffer_Backpressure(
	t *testing.T,
) {

	sink := &recordingDestination{name: "sink"}

	c := routerConfig()
	c.Router.BufferCapacity = 10

	router, err := NewRouter(c, sink)
	assert.NoError(t, err)

	for i := 0; i < 8; i++ {
		assert.NoError(t, router.Enqueue(testEvent("orders", cdc.OperationInsert, uint64(i))))
	}
	assert.True(t, router.Paused())

	result, err := router.Drain(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 8, result.Delivered["sink"])
	assert.False(t, router.Paused())
}

func Test_Hierarchy_Context_Chain(
	t *testing.T,
) {

	hierarchy, err := NewHierarchy()
	assert.NoError(t, err)

	hierarchy.Register("root", "")
	hierarchy.Register("folder", "root")
	hierarchy.Register("doc", "folder")

	chain, err := hierarchy.ContextChain("doc")
	assert.NoError(t, err)
	assert.Equal(t, []string{"doc", "folder", "root"}, chain)
}

func Test_Hierarchy_Detects_Cycles(
	t *testing.T,
) {

	hierarchy, err := NewHierarchy()
	assert.NoError(t, err)

	hierarchy.Register("a", "b")
	hierarchy.Register("b", "a")

	_, err = hierarchy.ContextChain("a")
	assert.Error(t, err)

	var circular *storage.CircularReferenceError
	assert.ErrorAs(t, err, &circular)
}

func Test_Hierarchy_Memoization_Invalidated_On_Registration(
	t *testing.T,
) {

	hierarchy, err := NewHierarchy()
	assert.NoError(t, err)

	hierarchy.Register("doc", "old-parent")
	chain, err := hierarchy.ContextChain("doc")
	assert.NoError(t, err)
	assert.Equal(t, []string{"doc", "old-parent"}, chain)

	hierarchy.Register("doc", "new-parent")
	chain, err = hierarchy.ContextChain("doc")
	assert.NoError(t, err)
	assert.Equal(t, []string{"doc", "new-parent"}, chain)
}

func Test_Hierarchy_Routes_To_Ancestors_Excluding_Source(
	t *testing.T,
) {

	hierarchy, err := NewHierarchy()
	assert.NoError(t, err)

	hierarchy.Register("root", "")
	hierarchy.Register("folder", "root")
	hierarchy.Register("doc", "folder")

	received := make(map[string]int)
	hierarchy.Listen("doc", func(event *cdc.ChangeEvent) error {
		received["doc"]++
		return nil
	})
	hierarchy.Listen("folder", func(event *cdc.ChangeEvent) error {
		received["folder"]++
		return nil
	})
	hierarchy.Listen("root", func(event *cdc.ChangeEvent) error {
		received["root"]++
		return nil
	})

	event := testEvent("docs", cdc.OperationUpdate, 1)
	assert.NoError(t, hierarchy.RouteEvent(event))

	assert.Equal(t, 0, received["doc"])
	assert.Equal(t, 1, received["folder"])
	assert.Equal(t, 1, received["root"])
}

func Test_Hierarchy_Listener_Isolation_And_Operation_Filter(
	t *testing.T,
) {

	hierarchy, err := NewHierarchy()
	assert.NoError(t, err)

	hierarchy.Register("parent", "")
	hierarchy.Register("doc", "parent")

	deletes := 0
	hierarchy.Listen("parent", func(event *cdc.ChangeEvent) error {
		panic("listener exploded")
	})
	hierarchy.Listen("parent", func(event *cdc.ChangeEvent) error {
		deletes++
		return nil
	}, cdc.OperationDelete)

	assert.NoError(t, hierarchy.RouteEvent(testEvent("docs", cdc.OperationUpdate, 1)))
	assert.Equal(t, 0, deletes)

	event := testEvent("docs", cdc.OperationDelete, 2)
	event.After = nil
	assert.NoError(t, hierarchy.RouteEvent(event))
	assert.Equal(t, 1, deletes)
}

func Test_Router_Propagation_Feeds_Hierarchy(
	t *testing.T,
) {

	sink := &recordingDestination{name: "sink"}
	router, err := NewRouter(routerConfig(), sink)
	assert.NoError(t, err)

	router.Hierarchy().Register("folder", "")
	router.Hierarchy().Register("doc", "folder")

	routed := 0
	router.Hierarchy().Listen("folder", func(event *cdc.ChangeEvent) error {
		routed++
		return nil
	})

	_, err = router.Propagate(context.Background(), []*cdc.ChangeEvent{
		testEvent("docs", cdc.OperationInsert, 1),
		testEvent("docs", cdc.OperationUpdate, 2),
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, routed)
	assert.Len(t, sink.delivered, 1)
}
