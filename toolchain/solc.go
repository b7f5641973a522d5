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
	"strings"
	"time"
)

const solcOptimizeRuns = "200"

// SolcCompiler compiles verifier contract source into deployable bytecode via
// the solc executable; every compilation runs in its own scratch directory
type SolcCompiler struct {
	solcPath string
	timeout  time.Duration
}

// InitSolcCompiler initializes and configures a new SolcCompiler instance
func InitSolcCompiler(solcPath string, timeout time.Duration) *SolcCompiler {
	return &SolcCompiler{
		solcPath: solcPath,
		timeout:  timeout,
	}
}

// Compile compiles the given contract source, returning hex-encoded bytecode
// without a 0x prefix
func (c *SolcCompiler) Compile(ctx context.Context, source string) (string, error) {
	scratch, err := os.MkdirTemp("", "arcana-solc-")
	if err != nil {
		return "", &ToolError{Tool: c.solcPath, Stage: StageContractCompile, Diagnostic: err.Error(), err: err}
	}
	defer os.RemoveAll(scratch)

	sourcePath := filepath.Join(scratch, "Verifier.sol")
	if err := os.WriteFile(sourcePath, []byte(source), 0o644); err != nil {
		return "", &ToolError{Tool: c.solcPath, Stage: StageContractCompile, Diagnostic: err.Error(), err: err}
	}

	_, err = run(ctx, c.timeout, scratch, StageContractCompile, c.solcPath,
		"--bin",
		"--optimize",
		"--optimize-runs", solcOptimizeRuns,
		sourcePath,
		"-o", scratch,
	)
	if err != nil {
		return "", err
	}

	binPaths, err := filepath.Glob(filepath.Join(scratch, "*.bin"))
	if err != nil || len(binPaths) == 0 {
		return "", &MissingArtifactError{Stage: StageContractCompile, Path: filepath.Join(scratch, "*.bin")}
	}

	raw, err := os.ReadFile(binPaths[0])
	if err != nil {
		return "", &MissingArtifactError{Stage: StageContractCompile, Path: binPaths[0]}
	}

	bytecode := strings.TrimSpace(string(raw))
	bytecode = strings.TrimPrefix(bytecode, "0x")
	if bytecode == "" {
		return "", &MissingArtifactError{Stage: StageContractCompile, Path: binPaths[0]}
	}

	return bytecode, nil
}
