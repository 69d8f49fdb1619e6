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

package stdout

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/vortexlabs/tierstream/internal/logging"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/destination"
)

func init() {
	destination.RegisterDestination(spiconfig.Stdout, newStdoutDestination)
}

type stdoutDestination struct {
	name   string
	logger *logging.Logger
}

func newStdoutDestination(
	_ *spiconfig.Config, dc spiconfig.DestinationConfig,
) (destination.Destination, error) {

	logger, err := logging.NewLogger("StdoutDestination")
	if err != nil {
		return nil, err
	}

	name := dc.Name
	if name == "" {
		name = "stdout"
	}
	return &stdoutDestination{
		name:   name,
		logger: logger,
	}, nil
}

func (s *stdoutDestination) Start() error {
	return nil
}

func (s *stdoutDestination) Stop() error {
	return nil
}

func (s *stdoutDestination) Name() string {
	return s.name
}

func (s *stdoutDestination) Deliver(
	_ context.Context, events []*cdc.ChangeEvent,
) error {

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		s.logger.Infof("===> /%s: \t%s\n", event.Collection, string(data))
	}
	return nil
}
