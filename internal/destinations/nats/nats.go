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

package nats

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/vortexlabs/tierstream/internal/version"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/destination"
)

func init() {
	destination.RegisterDestination(spiconfig.NATS, newNatsDestination)
}

type natsDestination struct {
	name             string
	subject          string
	client           *nats.Conn
	jetStreamContext nats.JetStreamContext
}

func newNatsDestination(
	_ *spiconfig.Config, dc spiconfig.DestinationConfig,
) (destination.Destination, error) {

	address := dc.Nats.Address
	if address == "" {
		address = "nats://localhost:4222"
	}

	options := []nats.Option{
		nats.Name(version.BinName),
		nats.RetryOnFailedConnect(true),
		nats.ReconnectWait(time.Second * 10),
		nats.ReconnectBufSize(1024 * 1024),
		nats.MaxReconnects(-1),
	}
	if dc.Nats.Username != "" {
		options = append(options, nats.UserInfo(dc.Nats.Username, dc.Nats.Password))
	}

	client, err := nats.Connect(address, options...)
	if err != nil {
		return nil, err
	}

	jetStreamContext, err := client.JetStream()
	if err != nil {
		return nil, err
	}

	name := dc.Name
	if name == "" {
		name = "nats"
	}
	return &natsDestination{
		name:             name,
		subject:          dc.Nats.Subject,
		client:           client,
		jetStreamContext: jetStreamContext,
	}, nil
}

func (n *natsDestination) Start() error {
	return nil
}

func (n *natsDestination) Stop() error {
	n.client.Close()
	return nil
}

func (n *natsDestination) Name() string {
	return n.name
}

func (n *natsDestination) Deliver(
	ctx context.Context, events []*cdc.ChangeEvent,
) error {

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		header := nats.Header{}
		header.Add("documentId", event.DocumentID)

		if _, err := n.jetStreamContext.PublishMsg(
			&nats.Msg{
				Subject: n.subject,
				Header:  header,
				Data:    data,
			},
			nats.Context(ctx),
		); err != nil {
			return err
		}
	}
	return nil
}
