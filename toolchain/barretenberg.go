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
	"os"
	"path/filepath"
	"time"

	"github.com/arcanaplatform/arcana/common"
)

// proofArtifactNames is the declared ordered list of accepted proof artifact
// filenames; the probe tolerates toolchain version differences without
// guessing silently
var proofArtifactNames = []string{"proof", "proof.bin", "proof.hex", "proof.json"}

const verificationKeyFilename = "vk"

// BarretenbergBackend drives the bb proof backend as supervised child
// processes against compiled circuit artifacts
type BarretenbergBackend struct {
	bbPath  string
	timeout time.Duration
}

// InitBarretenbergBackend initializes and configures a new BarretenbergBackend instance
func InitBarretenbergBackend(bbPath string, timeout time.Duration) *BarretenbergBackend {
	return &BarretenbergBackend{
		bbPath:  bbPath,
		timeout: timeout,
	}
}

// WriteVerificationKey derives the verification key for the compiled circuit
func (b *BarretenbergBackend) WriteVerificationKey(ctx context.Context, circuitPath, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", &ToolError{Tool: b.bbPath, Stage: StageWriteVerificationKey, Diagnostic: err.Error(), err: err}
	}

	_, err := run(ctx, b.timeout, filepath.Dir(outputDir), StageWriteVerificationKey, b.bbPath,
		"write_vk",
		"-b", circuitPath,
		"-o", outputDir,
	)
	if err != nil {
		return "", err
	}

	keyPath := filepath.Join(outputDir, verificationKeyFilename)
	if err := requireArtifact(StageWriteVerificationKey, keyPath); err != nil {
		return "", err
	}

	return keyPath, nil
}

// WriteVerifierSource generates verifier contract source from the verification key
func (b *BarretenbergBackend) WriteVerifierSource(ctx context.Context, verificationKeyPath, outputPath string) (string, error) {
	_, err := run(ctx, b.timeout, filepath.Dir(outputPath), StageWriteVerifierSource, b.bbPath,
		"write_solidity_verifier",
		"-k", verificationKeyPath,
		"-o", outputPath,
	)
	if err != nil {
		return "", err
	}

	if err := requireArtifact(StageWriteVerifierSource, outputPath); err != nil {
		return "", err
	}

	source, err := os.ReadFile(outputPath)
	if err != nil {
		return "", &MissingArtifactError{Stage: StageWriteVerifierSource, Path: outputPath}
	}

	return string(source), nil
}

// Prove generates a proof for the compiled circuit and witness; the accepted
// proof artifact names are probed in declared order and failure includes the
// full directory listing
func (b *BarretenbergBackend) Prove(ctx context.Context, circuitPath, witnessPath, outputDir string) ([]byte, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, &ToolError{Tool: b.bbPath, Stage: StageProve, Diagnostic: err.Error(), err: err}
	}

	_, err := run(ctx, b.timeout, filepath.Dir(outputDir), StageProve, b.bbPath,
		"prove",
		"-b", circuitPath,
		"-w", witnessPath,
		"-o", outputDir,
	)
	if err != nil {
		return nil, err
	}

	proofPath := b.probeProofArtifact(outputDir)
	if proofPath == "" {
		return nil, &ProofNotFoundError{
			Dir:     outputDir,
			Tried:   proofArtifactNames,
			Listing: listDir(outputDir),
		}
	}

	proof, err := os.ReadFile(proofPath)
	if err != nil {
		return nil, &MissingArtifactError{Stage: StageProve, Path: proofPath}
	}

	if len(proof) == 0 {
		return nil, &EmptyProofError{Path: proofPath}
	}

	common.Log.Debugf("resolved %d-byte proof artifact at %s", len(proof), proofPath)
	return proof, nil
}

func (b *BarretenbergBackend) probeProofArtifact(dir string) string {
	for _, name := range proofArtifactNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func listDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}
