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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/arcanaplatform/arcana/common"
)

// run supervises a single child process invocation with captured stdout and
// stderr and a bounded timeout; a non-zero exit always surfaces as a ToolError
// carrying the captured diagnostic text verbatim
func run(ctx context.Context, timeout time.Duration, dir, stage, tool string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, tool, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	common.Log.Debugf("%s %s completed in %s", tool, stage, time.Since(started))

	if err == nil {
		return stdout.String(), nil
	}

	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return "", &ToolError{
			Tool:       tool,
			Stage:      stage,
			Diagnostic: fmt.Sprintf("timed out after %s", timeout),
			Retryable:  true,
			err:        cctx.Err(),
		}
	}

	diagnostic := stderr.String()
	if diagnostic == "" {
		diagnostic = stdout.String()
	}

	return "", &ToolError{
		Tool:       tool,
		Stage:      stage,
		Diagnostic: diagnostic,
		err:        err,
	}
}

// requireArtifact verifies an expected output file exists and is non-empty;
// absence despite a zero exit code is itself an error
func requireArtifact(stage, path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return &MissingArtifactError{Stage: stage, Path: path}
	}
	return nil
}
