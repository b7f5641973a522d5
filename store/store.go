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

package store

import (
	"fmt"
	"sync"

	"github.com/arcanaplatform/arcana/common"
	"github.com/arcanaplatform/arcana/store/providers"
)

// Store is the artifact store facade; it owns the per-circuit-id locks
// serializing every canonical mutation for an id — full replacement, removal
// and metadata read-modify-write — so a straggling metadata write can never
// resurrect a replaced record and concurrent proof completions cannot lose
// proof_count increments
type Store struct {
	provider providers.ArtifactProvider

	mutex sync.Mutex
	locks map[string]*sync.Mutex
}

// New initializes a store facade around the given artifact provider
func New(provider providers.ArtifactProvider) *Store {
	return &Store{
		provider: provider,
		locks:    map[string]*sync.Mutex{},
	}
}

// InitStore initializes a store backed by the named provider
func InitStore(provider, root string) (*Store, error) {
	switch provider {
	case providers.ArtifactProviderFilesystem:
		fs, err := providers.InitFilesystemProvider(root)
		if err != nil {
			return nil, err
		}
		return New(fs), nil
	case providers.ArtifactProviderMemory:
		return New(providers.InitMemoryProvider()), nil
	default:
		common.Log.Warningf("failed to initialize artifact store; unknown provider: %s", provider)
		return nil, fmt.Errorf("unknown artifact store provider: %s", provider)
	}
}

// Put fully replaces any existing circuit with the same id; the replacement
// holds the per-circuit lock so an in-flight metadata write for the prior
// record cannot land after it
func (s *Store) Put(circuitID, manifest, source string, metadata *providers.Metadata) (*providers.CircuitRecord, error) {
	lock := s.lockFor(circuitID)
	lock.Lock()
	defer lock.Unlock()

	return s.provider.Put(circuitID, manifest, source, metadata)
}

// Get returns the stored record for the given circuit id
func (s *Store) Get(circuitID string) (*providers.CircuitRecord, error) {
	return s.provider.Get(circuitID)
}

// List returns all stored circuit records
func (s *Store) List() ([]*providers.CircuitRecord, error) {
	return s.provider.List()
}

// Delete removes the circuit and all of its artifacts
func (s *Store) Delete(circuitID string) error {
	lock := s.lockFor(circuitID)
	lock.Lock()
	defer lock.Unlock()

	return s.provider.Delete(circuitID)
}

// UpdateMetadata performs a read-modify-write of the metadata record under the
// per-circuit lock; the lock is held only for the metadata step, never across
// toolchain or network calls
func (s *Store) UpdateMetadata(circuitID string, mutate func(*providers.Metadata) error) (*providers.Metadata, error) {
	lock := s.lockFor(circuitID)
	lock.Lock()
	defer lock.Unlock()

	return s.provider.UpdateMetadata(circuitID, mutate)
}

func (s *Store) lockFor(circuitID string) *sync.Mutex {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	lock, lockOk := s.locks[circuitID]
	if !lockOk {
		lock = &sync.Mutex{}
		s.locks[circuitID] = lock
	}
	return lock
}
