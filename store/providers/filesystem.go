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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arcanaplatform/arcana/common"
)

const defaultWitnessInput = "x = 1\ny = 2\n"

// FilesystemProvider stores each circuit as a directory under a configured
// root; the metadata record lives beside the artifacts it describes
type FilesystemProvider struct {
	root string
}

// InitFilesystemProvider initializes a directory-per-circuit artifact provider
// rooted at the given path
func InitFilesystemProvider(root string) (*FilesystemProvider, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &StorageError{Op: "init", Err: err}
	}
	return &FilesystemProvider{root: root}, nil
}

func (p *FilesystemProvider) circuitPath(circuitID string) string {
	return filepath.Join(p.root, circuitID)
}

// Put fully replaces any existing circuit directory with the same id; the old
// artifacts are removed first so stale compiled output cannot leak into a new
// registration
func (p *FilesystemProvider) Put(circuitID, manifest, source string, metadata *Metadata) (*CircuitRecord, error) {
	path := p.circuitPath(circuitID)

	if err := os.RemoveAll(path); err != nil {
		return nil, &StorageError{Op: "put", Err: err}
	}

	err := p.materialize(path, manifest, source, metadata)
	if err != nil {
		// roll back the partial directory before surfacing the error
		os.RemoveAll(path)
		return nil, &StorageError{Op: "put", Err: err}
	}

	return &CircuitRecord{
		CircuitID: circuitID,
		Path:      path,
		Metadata:  *metadata,
	}, nil
}

func (p *FilesystemProvider) materialize(path, manifest, source string, metadata *Metadata) error {
	if err := os.MkdirAll(filepath.Join(path, "src"), 0o755); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(path, ManifestFilename), []byte(manifest), 0o644); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(path, SourceFilename), []byte(source), 0o644); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(path, WitnessInputFilename), []byte(defaultWitnessInput), 0o644); err != nil {
		return err
	}

	return p.writeMetadata(path, metadata)
}

// Get returns the stored record for the given circuit id
func (p *FilesystemProvider) Get(circuitID string) (*CircuitRecord, error) {
	path := p.circuitPath(circuitID)

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, &NotFoundError{CircuitID: circuitID}
	}

	metadata, err := p.readMetadata(path)
	if err != nil {
		return nil, err
	}

	return &CircuitRecord{
		CircuitID: circuitID,
		Path:      path,
		Metadata:  *metadata,
	}, nil
}

// List returns all stored circuit records; unreadable entries are skipped
func (p *FilesystemProvider) List() ([]*CircuitRecord, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}

	records := make([]*CircuitRecord, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		record, err := p.Get(entry.Name())
		if err != nil {
			common.Log.Warningf("failed to resolve stored circuit %s; %s", entry.Name(), err.Error())
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

// UpdateMetadata performs a read-modify-write of the metadata record; the
// caller is responsible for excluding concurrent writers per circuit id
func (p *FilesystemProvider) UpdateMetadata(circuitID string, mutate func(*Metadata) error) (*Metadata, error) {
	path := p.circuitPath(circuitID)

	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return nil, &NotFoundError{CircuitID: circuitID}
	}

	metadata, err := p.readMetadata(path)
	if err != nil {
		return nil, err
	}

	if err := mutate(metadata); err != nil {
		return nil, err
	}

	if err := p.writeMetadata(path, metadata); err != nil {
		return nil, &StorageError{Op: "update_metadata", Err: err}
	}

	return metadata, nil
}

// Delete removes the circuit directory and all of its artifacts
func (p *FilesystemProvider) Delete(circuitID string) error {
	if err := os.RemoveAll(p.circuitPath(circuitID)); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

func (p *FilesystemProvider) readMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(filepath.Join(path, MetadataFilename))
	if err != nil {
		return nil, &StorageError{Op: "read_metadata", Err: err}
	}

	metadata := &Metadata{}
	if err := json.Unmarshal(raw, metadata); err != nil {
		return nil, &StorageError{Op: "read_metadata", Err: fmt.Errorf("malformed metadata record; %s", err.Error())}
	}

	return metadata, nil
}

// writeMetadata replaces the metadata record atomically via tmp + rename
func (p *FilesystemProvider) writeMetadata(path string, metadata *Metadata) error {
	raw, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}

	tmp := filepath.Join(path, MetadataFilename+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, filepath.Join(path, MetadataFilename))
}
