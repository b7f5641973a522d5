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
	"fmt"
	"strings"
)

// toolchain stages; each maps onto a machine-readable error kind
const (
	StageCheck                = "check"
	StageCompile              = "compile"
	StageExecute              = "execute"
	StageProve                = "prove"
	StageWriteVerificationKey = "write_vk"
	StageWriteVerifierSource  = "write_verifier"
	StageContractCompile      = "contract_compile"
)

// ToolError indicates a supervised child process failed; the captured
// diagnostic text is carried verbatim and never swallowed
type ToolError struct {
	Tool       string
	Stage      string
	Diagnostic string
	Retryable  bool
	err        error
}

// Error returns a human-readable description of the error
func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Tool, e.Stage)
	if e.Diagnostic != "" {
		msg = fmt.Sprintf("%s; %s", msg, strings.TrimSpace(e.Diagnostic))
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ToolError) Unwrap() error {
	return e.err
}

// Kind returns the machine-readable error kind derived from the failed stage
func (e *ToolError) Kind() string {
	switch e.Stage {
	case StageCheck:
		return "validation_error"
	case StageCompile:
		return "compile_error"
	case StageExecute:
		return "execution_error"
	case StageProve, StageWriteVerificationKey, StageWriteVerifierSource:
		return "prove_error"
	case StageContractCompile:
		return "compile_error"
	default:
		return "toolchain_error"
	}
}

// MissingArtifactError indicates the toolchain reported success but an
// expected output artifact is absent or empty; this signals a toolchain or
// version mismatch and is distinct from a non-zero exit
type MissingArtifactError struct {
	Stage string
	Path  string
}

// Error returns a human-readable description of the error
func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("expected %s artifact not found or empty at %s", e.Stage, e.Path)
}

// Kind returns the machine-readable error kind
func (e *MissingArtifactError) Kind() string {
	return "missing_artifact"
}

// ProofNotFoundError indicates no accepted proof artifact name matched; the
// directory listing is included so a toolchain rename is diagnosable
type ProofNotFoundError struct {
	Dir     string
	Tried   []string
	Listing []string
}

// Error returns a human-readable description of the error
func (e *ProofNotFoundError) Error() string {
	return fmt.Sprintf(
		"proof artifact not found in %s; tried %s; available: %s",
		e.Dir,
		strings.Join(e.Tried, ", "),
		strings.Join(e.Listing, ", "),
	)
}

// Kind returns the machine-readable error kind
func (e *ProofNotFoundError) Kind() string {
	return "proof_not_found"
}

// EmptyProofError indicates a proof artifact exists but contains no bytes;
// an empty proof after a reported success is never treated as success
type EmptyProofError struct {
	Path string
}

// Error returns a human-readable description of the error
func (e *EmptyProofError) Error() string {
	return fmt.Sprintf("generated proof at %s is empty", e.Path)
}

// Kind returns the machine-readable error kind
func (e *EmptyProofError) Kind() string {
	return "empty_proof"
}
