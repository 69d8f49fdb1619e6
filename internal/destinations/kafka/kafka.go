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

package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/vortexlabs/tierstream/internal/version"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/destination"
)

func init() {
	destination.RegisterDestination(spiconfig.Kafka, newKafkaDestination)
}

type kafkaDestination struct {
	name     string
	topic    string
	producer sarama.SyncProducer
}

func newKafkaDestination(
	_ *spiconfig.Config, dc spiconfig.DestinationConfig,
) (destination.Destination, error) {

	c := sarama.NewConfig()
	c.ClientID = version.BinName
	c.Producer.Idempotent = dc.Kafka.Idempotent
	c.Producer.Return.Successes = true
	c.Producer.RequiredAcks = sarama.WaitForLocal
	c.Producer.Retry.Max = 10
	if c.Producer.Idempotent {
		c.Producer.RequiredAcks = sarama.WaitForAll
		c.Net.MaxOpenRequests = 1
	}

	brokers := dc.Kafka.Brokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	producer, err := sarama.NewSyncProducer(brokers, c)
	if err != nil {
		return nil, err
	}

	name := dc.Name
	if name == "" {
		name = "kafka"
	}
	return &kafkaDestination{
		name:     name,
		topic:    dc.Kafka.Topic,
		producer: producer,
	}, nil
}

func (k *kafkaDestination) Start() error {
	return nil
}

func (k *kafkaDestination) Stop() error {
	return k.producer.Close()
}

func (k *kafkaDestination) Name() string {
	return k.name
}

func (k *kafkaDestination) Deliver(
	_ context.Context, events []*cdc.ChangeEvent,
) error {

	messages := make([]*sarama.ProducerMessage, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		messages = append(messages, &sarama.ProducerMessage{
			Topic:     k.topic,
			Key:       sarama.StringEncoder(event.DocumentID),
			Value:     sarama.ByteEncoder(data),
			Timestamp: event.Timestamp,
		})
	}
	return k.producer.SendMessages(messages)
}
