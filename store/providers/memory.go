/*
 * Copyright 2023-2025 Arcana Labs, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package providers

import (
	"sort"
	"sync"
)

type memoryCircuit struct {
	manifest string
	source   string
	metadata Metadata
}

// MemoryProvider is the most basic implementation of an ArtifactProvider;
// nothing is durable and compiled artifacts have no backing directory, which
// is sufficient for lifecycle tests
type MemoryProvider struct {
	mutex    sync.RWMutex
	circuits map[string]*memoryCircuit
}

// InitMemoryProvider initializes an in-memory artifact provider
func InitMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		circuits: map[string]*memoryCircuit{},
	}
}

// Put fully replaces any existing circuit stored under the same id
func (p *MemoryProvider) Put(circuitID, manifest, source string, metadata *Metadata) (*CircuitRecord, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.circuits[circuitID] = &memoryCircuit{
		manifest: manifest,
		source:   source,
		metadata: *metadata,
	}

	return &CircuitRecord{
		CircuitID: circuitID,
		Metadata:  *metadata,
	}, nil
}

// Get returns the stored record for the given circuit id
func (p *MemoryProvider) Get(circuitID string) (*CircuitRecord, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	circuit, circuitOk := p.circuits[circuitID]
	if !circuitOk {
		return nil, &NotFoundError{CircuitID: circuitID}
	}

	return &CircuitRecord{
		CircuitID: circuitID,
		Metadata:  circuit.metadata,
	}, nil
}

// List returns all stored circuit records in id order
func (p *MemoryProvider) List() ([]*CircuitRecord, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	ids := make([]string, 0, len(p.circuits))
	for id := range p.circuits {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]*CircuitRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, &CircuitRecord{
			CircuitID: id,
			Metadata:  p.circuits[id].metadata,
		})
	}

	return records, nil
}

// UpdateMetadata performs a read-modify-write of the metadata record; when the
// mutator returns an error nothing is written
func (p *MemoryProvider) UpdateMetadata(circuitID string, mutate func(*Metadata) error) (*Metadata, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	circuit, circuitOk := p.circuits[circuitID]
	if !circuitOk {
		return nil, &NotFoundError{CircuitID: circuitID}
	}

	metadata := circuit.metadata
	if err := mutate(&metadata); err != nil {
		return nil, err
	}

	circuit.metadata = metadata
	return &metadata, nil
}

// Delete removes the circuit
func (p *MemoryProvider) Delete(circuitID string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	delete(p.circuits, circuitID)
	return nil
}
