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
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-errors/errors"
	"github.com/vortexlabs/tierstream/internal/containers"
	"github.com/vortexlabs/tierstream/internal/logging"
	"github.com/vortexlabs/tierstream/internal/stats"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/destination"
)

// Transformer reshapes a batch before fan-out. Transformers run in
// registration order, each receiving the previous transformer's output.
type Transformer func(events []*cdc.ChangeEvent) ([]*cdc.ChangeEvent, error)

// DeliveryResult aggregates the per-destination outcome of one Propagate
// call.
type DeliveryResult struct {
	Delivered      map[string]int
	TotalDelivered int
	PartialFailure bool
	Errors         map[string]error
}

type routedDestination struct {
	destination destination.Destination
	breaker     *circuitBreaker
}

// Router fans filtered and transformed event batches out to the configured
// destinations. Delivery to one destination is retried with capped
// exponential backoff and circuit broken independently of its siblings.
type Router struct {
	filter       EventFilter
	maxRetries   uint
	breakerLimit uint
	breakerReset time.Duration

	mutex        sync.Mutex
	transformers []Transformer
	destinations []*routedDestination

	buffer    *containers.RingBuffer[*cdc.ChangeEvent]
	hierarchy *Hierarchy
	logger    *logging.Logger
	reporter  *stats.Reporter
}

func NewRouter(
	c *spiconfig.Config, destinations ...destination.Destination,
) (*Router, error) {

	logger, err := logging.NewLogger("Router")
	if err != nil {
		return nil, err
	}

	filter, err := NewEventFilter(c.Router.Filters)
	if err != nil {
		return nil, err
	}

	capacity := int(spiconfig.GetOrDefault(
		c, spiconfig.PropertyRouterBufferCapacity, uint(1024),
	))
	buffer, err := containers.NewRingBuffer[*cdc.ChangeEvent](
		capacity, capacity*8/10, capacity*2/10,
	)
	if err != nil {
		return nil, err
	}

	hierarchy, err := NewHierarchy()
	if err != nil {
		return nil, err
	}

	router := &Router{
		filter: filter,
		maxRetries: spiconfig.GetOrDefault(
			c, spiconfig.PropertyRouterMaxRetries, uint(5),
		),
		breakerLimit: spiconfig.GetOrDefault(
			c, spiconfig.PropertyRouterBreakerThreshold, uint(5),
		),
		breakerReset: spiconfig.GetOrDefault(
			c, spiconfig.PropertyRouterBreakerReset, time.Second*30,
		),
		buffer:    buffer,
		hierarchy: hierarchy,
		logger:    logger,
	}
	for _, d := range destinations {
		router.AddDestination(d)
	}
	return router, nil
}

// WithReporter attaches a metrics reporter. A nil reporter is valid and
// simply drops all measurements.
func (r *Router) WithReporter(
	reporter *stats.Reporter,
) *Router {

	r.reporter = reporter
	return r
}

func (r *Router) Start() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, rd := range r.destinations {
		if err := rd.destination.Start(); err != nil {
			return errors.Wrap(err, 0)
		}
	}
	return nil
}

func (r *Router) Stop() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, rd := range r.destinations {
		if err := rd.destination.Stop(); err != nil {
			r.logger.Errorf("stopping destination '%s': %v", rd.destination.Name(), err)
		}
	}
	return nil
}

func (r *Router) AddDestination(
	d destination.Destination,
) {

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.destinations = append(r.destinations, &routedDestination{
		destination: d,
		breaker:     newCircuitBreaker(r.breakerLimit, r.breakerReset),
	})
}

func (r *Router) RegisterTransformer(
	transformer Transformer,
) {

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.transformers = append(r.transformers, transformer)
}

// Enqueue buffers an event for a later Drain. The buffer applies local
// backpressure through its water marks, producers are expected to check
// Paused before writing more.
func (r *Router) Enqueue(
	event *cdc.ChangeEvent,
) error {

	return r.buffer.Write(event)
}

// Hierarchy exposes the context hierarchy events are routed through
// before destination fan-out.
func (r *Router) Hierarchy() *Hierarchy {
	return r.hierarchy
}

func (r *Router) Paused() bool {
	return r.buffer.Paused()
}

// Drain propagates all currently buffered events as one batch.
func (r *Router) Drain(
	ctx context.Context,
) (*DeliveryResult, error) {

	events := make([]*cdc.ChangeEvent, 0, r.buffer.Len())
	for {
		event, ok := r.buffer.Read()
		if !ok {
			break
		}
		events = append(events, event)
	}
	if len(events) == 0 {
		return emptyResult(), nil
	}
	return r.Propagate(ctx, events)
}

// Propagate filters, transforms and fans the batch out. The returned
// result carries every per-destination outcome even when some of the
// deliveries failed.
func (r *Router) Propagate(
	ctx context.Context, events []*cdc.ChangeEvent,
) (*DeliveryResult, error) {

	filtered := make([]*cdc.ChangeEvent, 0, len(events))
	for _, event := range events {
		success, err := r.filter.Evaluate(event)
		if err != nil {
			return nil, err
		}
		if success {
			filtered = append(filtered, event)
		}
	}

	r.mutex.Lock()
	transformers := r.transformers
	destinations := r.destinations
	r.mutex.Unlock()

	var err error
	for _, transformer := range transformers {
		if filtered, err = transformer(filtered); err != nil {
			return nil, err
		}
	}

	result := emptyResult()
	if len(filtered) == 0 {
		return result, nil
	}

	for _, event := range filtered {
		if err := r.hierarchy.RouteEvent(event); err != nil {
			r.logger.Errorf(
				"hierarchy routing for document '%s' failed: %v", event.DocumentID, err,
			)
		}
	}

	for _, rd := range destinations {
		name := rd.destination.Name()
		if err := r.deliver(ctx, rd, filtered); err != nil {
			result.PartialFailure = true
			result.Errors[name] = err
			r.reporter.Incr("delivery_failures")
			continue
		}
		result.Delivered[name] = len(filtered)
		result.TotalDelivered += len(filtered)
		r.reporter.Add("events_delivered", float64(len(filtered)))
	}
	return result, nil
}

func (r *Router) deliver(
	ctx context.Context, rd *routedDestination, events []*cdc.ChangeEvent,
) error {

	if !rd.breaker.allow() {
		return errors.Errorf(
			"circuit open for destination '%s'", rd.destination.Name(),
		)
	}

	operation := func() error {
		return rd.destination.Deliver(ctx, events)
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(r.maxRetries)), ctx,
	))
	if err != nil {
		rd.breaker.failure()
		return err
	}
	rd.breaker.success()
	return nil
}

func emptyResult() *DeliveryResult {
	return &DeliveryResult{
		Delivered: make(map[string]int),
		Errors:    make(map[string]error),
	}
}
