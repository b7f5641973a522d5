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

package toolchain

import (
	"context"
	"path/filepath"
	"time"
)

// conventional nargo output paths relative to the working directory
const (
	noirCircuitArtifact = "target/noir.json"
	noirWitnessArtifact = "target/noir.gz"
)

// NoirToolchain drives the nargo compiler/checker as supervised child
// processes against a working directory
type NoirToolchain struct {
	nargoPath string
	timeout   time.Duration
}

// InitNoirToolchain initializes and configures a new NoirToolchain instance
func InitNoirToolchain(nargoPath string, timeout time.Duration) *NoirToolchain {
	return &NoirToolchain{
		nargoPath: nargoPath,
		timeout:   timeout,
	}
}

// Check validates the circuit source in the given working directory
func (t *NoirToolchain) Check(ctx context.Context, workdir string) error {
	_, err := run(ctx, t.timeout, workdir, StageCheck, t.nargoPath, "check")
	return err
}

// Compile compiles the circuit and verifies the compiled artifact exists and
// is non-empty before declaring success
func (t *NoirToolchain) Compile(ctx context.Context, workdir string) (*CompiledArtifacts, error) {
	_, err := run(ctx, t.timeout, workdir, StageCompile, t.nargoPath, "compile")
	if err != nil {
		return nil, err
	}

	circuitPath := filepath.Join(workdir, noirCircuitArtifact)
	if err := requireArtifact(StageCompile, circuitPath); err != nil {
		return nil, err
	}

	return &CompiledArtifacts{CircuitPath: circuitPath}, nil
}

// Execute solves the witness for the materialized input assignment and
// verifies the witness artifact exists before declaring success
func (t *NoirToolchain) Execute(ctx context.Context, workdir string) (*WitnessArtifact, error) {
	_, err := run(ctx, t.timeout, workdir, StageExecute, t.nargoPath, "execute")
	if err != nil {
		return nil, err
	}

	witnessPath := filepath.Join(workdir, noirWitnessArtifact)
	if err := requireArtifact(StageExecute, witnessPath); err != nil {
		return nil, err
	}

	return &WitnessArtifact{Path: witnessPath}, nil
}
