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

package prover

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	uuid "github.com/kthomas/go.uuid"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/arcanaplatform/arcana/common"
	"github.com/arcanaplatform/arcana/store"
	"github.com/arcanaplatform/arcana/store/providers"
	"github.com/arcanaplatform/arcana/toolchain"
)

const proofOutputDirname = "proof"

// Prover generates proofs for registered circuits; every proof job runs in an
// isolated scratch copy of the circuit directory so concurrent jobs against
// the same circuit never interfere
type Prover struct {
	store     *store.Store
	toolchain toolchain.CircuitToolchain
	backend   toolchain.ProofBackend
}

// Proof is the result of a completed proof generation job
type Proof struct {
	CircuitID string `json:"circuit_id"`
	JobID     string `json:"job_id"`
	Proof     string `json:"proof"`
	Hash      string `json:"proof_hash"`

	Raw []byte `json:"-"`
}

// InitProver initializes and configures a new Prover instance
func InitProver(artifacts *store.Store, circuitToolchain toolchain.CircuitToolchain, backend toolchain.ProofBackend) *Prover {
	return &Prover{
		store:     artifacts,
		toolchain: circuitToolchain,
		backend:   backend,
	}
}

// Generate generates a proof for the given circuit and witness input
// assignment; the scratch working directory is always removed, on success and
// on every failure path
func (p *Prover) Generate(ctx context.Context, circuitID string, inputs map[string]interface{}) (*Proof, error) {
	record, err := p.store.Get(circuitID)
	if err != nil {
		return nil, err
	}
	if record.Path == "" {
		return nil, &StateError{Detail: fmt.Sprintf("circuit %s has no durable artifact directory", circuitID)}
	}

	jobID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate proof job id; %s", err.Error())
	}

	workdir, err := os.MkdirTemp("", "arcana-proof-")
	if err != nil {
		return nil, &providers.StorageError{Op: "proof staging", Err: err}
	}
	defer os.RemoveAll(workdir)

	if err := common.CopyDir(record.Path, workdir); err != nil {
		return nil, &providers.StorageError{Op: "proof staging", Err: err}
	}

	if err := p.materializeWitnessInput(workdir, inputs); err != nil {
		return nil, err
	}

	artifacts, err := p.toolchain.Compile(ctx, workdir)
	if err != nil {
		return nil, err
	}

	witness, err := p.toolchain.Execute(ctx, workdir)
	if err != nil {
		return nil, err
	}

	raw, err := p.backend.Prove(ctx, artifacts.CircuitPath, witness.Path, filepath.Join(workdir, proofOutputDirname))
	if err != nil {
		return nil, err
	}

	encoded := base64.StdEncoding.EncodeToString(raw)
	proof := &Proof{
		CircuitID: circuitID,
		JobID:     jobID.String(),
		Proof:     encoded,
		Hash:      common.SHA256(encoded),
		Raw:       raw,
	}

	common.Log.Debugf("generated %d-byte proof for circuit %s; job id: %s", len(raw), circuitID, proof.JobID)
	return proof, nil
}

// materializeWitnessInput renders the witness input assignment into the
// scratch working directory, replacing the registered default assignment
func (p *Prover) materializeWitnessInput(workdir string, inputs map[string]interface{}) error {
	assignment, err := toml.Marshal(inputs)
	if err != nil {
		return &InputError{Detail: fmt.Sprintf("failed to encode witness inputs; %s", err.Error())}
	}

	path := filepath.Join(workdir, providers.WitnessInputFilename)
	if err := os.WriteFile(path, assignment, 0o644); err != nil {
		return &providers.StorageError{Op: "witness input materialization", Err: err}
	}

	return nil
}
