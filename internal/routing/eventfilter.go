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
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/samber/lo"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
)

type EventFilter interface {
	Evaluate(event *cdc.ChangeEvent) (bool, error)
}

type eventFilterFunc func(event *cdc.ChangeEvent) (bool, error)

func (eff eventFilterFunc) Evaluate(
	event *cdc.ChangeEvent,
) (bool, error) {

	return eff(event)
}

// NewEventFilter compiles the configured filter conditions into a single
// composite filter. An event passes when every condition accepts it, a
// condition scoped to collections only applies to events of those
// collections.
func NewEventFilter(
	filterDefinitions map[string]spiconfig.EventFilterConfig,
) (EventFilter, error) {

	if filterDefinitions == nil {
		return acceptAllFilter, nil
	}

	filters := make([]*eventFilter, 0)
	for _, def := range filterDefinitions {
		defaultValue := true
		if def.DefaultValue != nil {
			defaultValue = *def.DefaultValue
		}

		prog, err := expr.Compile(def.Condition)
		if err != nil {
			return nil, err
		}

		filters = append(filters, &eventFilter{
			defaultValue: defaultValue,
			collections:  def.Collections,
			condition:    def.Condition,
			prog:         prog,
			vm:           &vm.VM{},
		})
	}
	return compositeFilter(filters), nil
}

var acceptAllFilter eventFilterFunc = func(_ *cdc.ChangeEvent) (bool, error) {
	return true, nil
}

var compositeFilter = func(filters []*eventFilter) EventFilter {
	return eventFilterFunc(func(event *cdc.ChangeEvent) (bool, error) {
		for _, filter := range filters {
			if len(filter.collections) > 0 &&
				!lo.Contains(filter.collections, event.Collection) {

				continue
			}
			success, err := filter.evaluate(event)
			if err != nil {
				return false, err
			}
			if !success {
				return false, nil
			}
		}
		return true, nil
	})
}

type eventFilter struct {
	defaultValue bool
	collections  []string
	condition    string
	prog         *vm.Program
	vm           *vm.VM
}

func (f *eventFilter) evaluate(
	event *cdc.ChangeEvent,
) (bool, error) {

	env := map[string]any{
		"operation":  string(event.Operation),
		"collection": event.Collection,
		"documentId": event.DocumentID,
		"sequence":   event.Sequence,
		"before":     event.Before,
		"after":      event.After,
		"source":     event.Source,
	}

	result, err := f.vm.Run(f.prog, env)
	if err != nil {
		return false, err
	}

	if r, ok := result.(bool); ok {
		return r, nil
	}
	return f.defaultValue, nil
}
