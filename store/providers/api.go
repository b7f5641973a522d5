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
	"fmt"
	"time"
)

// ArtifactProviderFilesystem directory-per-circuit artifact provider
const ArtifactProviderFilesystem = "filesystem"

// ArtifactProviderMemory in-memory artifact provider
const ArtifactProviderMemory = "memory"

// conventional artifact names within a circuit directory
const (
	// ManifestFilename is the compiler manifest written on registration
	ManifestFilename = "Nargo.toml"

	// SourceFilename is the main circuit source written on registration
	SourceFilename = "src/main.nr"

	// WitnessInputFilename is the witness input assignment consumed by execution
	WitnessInputFilename = "Prover.toml"

	// MetadataFilename is the metadata record stored beside the artifacts
	MetadataFilename = "metadata.json"
)

// Metadata is the per-circuit metadata record; it is persisted beside the
// circuit artifacts and only ever replaced atomically
type Metadata struct {
	Description     *string   `json:"description"`
	CreatedAt       time.Time `json:"created_at"`
	LastModified    time.Time `json:"last_modified"`
	Status          string    `json:"status"`
	VerifierAddress *string   `json:"verifier_address"`
	ProofCount      uint64    `json:"proof_count"`
	Network         string    `json:"network"`
}

// CircuitRecord references a stored circuit and its metadata
type CircuitRecord struct {
	CircuitID string   `json:"circuit_id"`
	Path      string   `json:"-"` // canonical artifact directory; empty for non-durable providers
	Metadata  Metadata `json:"metadata"`
}

// ArtifactProvider provides a common interface to interact with per-circuit
// artifact storage facilities
type ArtifactProvider interface {
	// Put fully replaces any prior circuit stored under the same id, writing
	// source, manifest and metadata together; a partially written directory is
	// torn down before the error surfaces
	Put(circuitID, manifest, source string, metadata *Metadata) (*CircuitRecord, error)

	// Get returns the stored record or a NotFoundError
	Get(circuitID string) (*CircuitRecord, error)

	// List returns all stored records
	List() ([]*CircuitRecord, error)

	// UpdateMetadata performs a read-modify-write of the metadata record; when
	// the mutator returns an error nothing is written
	UpdateMetadata(circuitID string, mutate func(*Metadata) error) (*Metadata, error)

	// Delete removes the circuit and all of its artifacts
	Delete(circuitID string) error
}

// NotFoundError indicates the requested circuit id is not stored
type NotFoundError struct {
	CircuitID string
}

// Error returns a human-readable description of the error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("circuit %s not found", e.CircuitID)
}

// Kind returns the machine-readable error kind
func (e *NotFoundError) Kind() string {
	return "not_found"
}

// StorageError indicates an I/O failure within the artifact store
type StorageError struct {
	Op  string
	Err error
}

// Error returns a human-readable description of the error
func (e *StorageError) Error() string {
	return fmt.Sprintf("artifact storage failure during %s; %s", e.Op, e.Err.Error())
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Kind returns the machine-readable error kind
func (e *StorageError) Kind() string {
	return "storage_error"
}
