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

import "context"

// CircuitToolchainNoir noir circuit toolchain provider
const CircuitToolchainNoir = "noir"

// ProofBackendBarretenberg barretenberg proof backend provider
const ProofBackendBarretenberg = "barretenberg"

// ContractCompilerSolc solc contract compiler provider
const ContractCompilerSolc = "solc"

// CompiledArtifacts references the output of a successful circuit compilation
type CompiledArtifacts struct {
	// CircuitPath is the compiled circuit description consumed by the proof backend
	CircuitPath string

	// BytecodePath is the compiled circuit bytecode, when the toolchain emits one
	BytecodePath string
}

// WitnessArtifact references the witness produced by circuit execution
type WitnessArtifact struct {
	Path string
}

// CircuitToolchain provides a common interface to interact with an external
// circuit compiler/checker against a working directory
type CircuitToolchain interface {
	// Check validates the circuit source in the given working directory
	Check(ctx context.Context, workdir string) error

	// Compile compiles the circuit and verifies the expected artifacts exist
	Compile(ctx context.Context, workdir string) (*CompiledArtifacts, error)

	// Execute solves the witness for the input assignment materialized in the
	// working directory and verifies the witness artifact exists
	Execute(ctx context.Context, workdir string) (*WitnessArtifact, error)
}

// ProofBackend provides a common interface to interact with an external proof
// backend operating on compiled circuit artifacts
type ProofBackend interface {
	// WriteVerificationKey derives the verification key for the compiled
	// circuit, returning the path of the written key artifact
	WriteVerificationKey(ctx context.Context, circuitPath, outputDir string) (string, error)

	// WriteVerifierSource generates verifier contract source from the
	// verification key, returning the source text
	WriteVerifierSource(ctx context.Context, verificationKeyPath, outputPath string) (string, error)

	// Prove generates a proof for the compiled circuit and witness, returning
	// the raw proof bytes
	Prove(ctx context.Context, circuitPath, witnessPath, outputDir string) ([]byte, error)
}

// ContractCompiler provides a common interface to compile contract source into
// deployable bytecode
type ContractCompiler interface {
	// Compile compiles the given contract source, returning hex-encoded
	// bytecode without a 0x prefix
	Compile(ctx context.Context, source string) (string, error)
}
