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

package replay

import (
	"context"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/vortexlabs/tierstream/internal/logging"
	"github.com/vortexlabs/tierstream/internal/waiting"
	"github.com/vortexlabs/tierstream/spi/cdc"
	"github.com/vortexlabs/tierstream/spi/checkpoint"
)

type SubscriptionState string

const (
	SubscriptionStopped SubscriptionState = "stopped"
	SubscriptionRunning SubscriptionState = "running"
	SubscriptionPaused  SubscriptionState = "paused"
)

const defaultPollInterval = 500 * time.Millisecond

type SubscriptionOptions struct {
	SubscriberID string
	Collections  []string
	Operations   []cdc.Operation
	BatchSize    int
	PollInterval time.Duration
	OnError      func(error)
}

// Subscription wraps a replayer and a checkpoint store in an explicit
// state machine. The pull loop parks on a waiter while paused or caught
// up instead of busy polling, saves a checkpoint after every handled
// batch, and routes handler failures to the error callback without ever
// leaving the loop.
type Subscription struct {
	replayer *Replayer
	storage  checkpoint.Storage
	handler  BatchHandler
	options  SubscriptionOptions

	mutex      sync.Mutex
	state      SubscriptionState
	terminated bool

	cancel context.CancelFunc
	waiter *waiting.Waiter
	done   chan struct{}

	logger *logging.Logger
}

func NewSubscription(
	replayer *Replayer, storage checkpoint.Storage,
	handler BatchHandler, options SubscriptionOptions,
) (*Subscription, error) {

	if options.SubscriberID == "" {
		return nil, errors.Errorf("subscription needs a subscriber id")
	}
	if handler == nil {
		return nil, errors.Errorf("subscription needs a batch handler")
	}
	if options.PollInterval <= 0 {
		options.PollInterval = defaultPollInterval
	}

	logger, err := logging.NewLogger("Subscription")
	if err != nil {
		return nil, err
	}

	return &Subscription{
		replayer: replayer,
		storage:  storage,
		handler:  handler,
		options:  options,
		state:    SubscriptionStopped,
		logger:   logger,
	}, nil
}

func (s *Subscription) State() SubscriptionState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Start transitions stopped to running and begins pulling batches from the
// last saved checkpoint. A stopped subscription cannot be restarted.
func (s *Subscription) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.terminated {
		return errors.Errorf("subscription '%s' is stopped for good", s.options.SubscriberID)
	}
	if s.state != SubscriptionStopped {
		return errors.Errorf("subscription '%s' is already %s", s.options.SubscriberID, s.state)
	}

	start, err := s.startOptions()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.waiter = waiting.NewWaiterWithTimeout(s.options.PollInterval)
	s.done = make(chan struct{})
	s.state = SubscriptionRunning

	s.logger.Infof("Starting subscription '%s'", s.options.SubscriberID)
	go s.run(ctx, start)
	return nil
}

// Pause suspends the pull loop without losing position.
func (s *Subscription) Pause() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state == SubscriptionRunning {
		s.state = SubscriptionPaused
	}
}

func (s *Subscription) Resume() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state == SubscriptionPaused {
		s.state = SubscriptionRunning
		s.waiter.Signal()
	}
}

// Stop is terminal. It cancels the loop, awaits in-flight work, and leaves
// the subscription in the stopped state.
func (s *Subscription) Stop() error {
	s.mutex.Lock()
	if s.state == SubscriptionStopped {
		s.terminated = true
		s.mutex.Unlock()
		return nil
	}
	s.state = SubscriptionStopped
	s.terminated = true
	cancel := s.cancel
	waiter := s.waiter
	done := s.done
	s.mutex.Unlock()

	cancel()
	waiter.Signal()
	<-done

	s.logger.Infof("Stopped subscription '%s'", s.options.SubscriberID)
	return nil
}

func (s *Subscription) startOptions() (ReplayOptions, error) {
	options := ReplayOptions{
		Collections: s.options.Collections,
		Operations:  s.options.Operations,
		BatchSize:   s.options.BatchSize,
	}

	saved, err := s.storage.Lookup(s.options.SubscriberID)
	if err != nil {
		return options, err
	}
	if saved != nil {
		cursor := saved.Cursor
		options.Cursor = &cursor
	}
	return options, nil
}

func (s *Subscription) run(
	ctx context.Context, options ReplayOptions,
) {

	defer close(s.done)

	for {
		if ctx.Err() != nil {
			return
		}

		switch s.State() {
		case SubscriptionStopped:
			return
		case SubscriptionPaused:
			s.park()
			continue
		}

		batch, err := s.replayer.GetBatch(ctx, options)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.reportError(err)
			s.park()
			continue
		}

		if len(batch.Events) > 0 {
			if err := invokeHandler(s.handler, batch); err != nil {
				// Keep the position so the batch is retried after the
				// poll interval.
				s.reportError(err)
				s.park()
				continue
			}

			if _, err := s.storage.Save(&checkpoint.Checkpoint{
				SubscriberID: s.options.SubscriberID,
				Cursor:       batch.Cursor,
			}); err != nil {
				s.reportError(err)
			}

			cursor := batch.Cursor
			options.Cursor = &cursor
			options.Sequence = 0
			options.Timestamp = time.Time{}
		}

		if len(batch.Events) == 0 || !batch.HasMore {
			s.park()
		}
	}
}

// park waits for the poll interval, a resume signal, or a stop.
func (s *Subscription) park() {
	s.waiter.Reset()
	_ = s.waiter.Await()
}

func (s *Subscription) reportError(
	err error,
) {

	s.logger.Errorf("subscription '%s': %v", s.options.SubscriberID, err)
	if s.options.OnError != nil {
		s.options.OnError(err)
	}
}
