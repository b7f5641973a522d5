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

package tx

import "fmt"

// ChainError indicates a chain RPC interaction failed or a named network is
// not configured
type ChainError struct {
	Network   string
	Detail    string
	Retryable bool
	err       error
}

// Error returns a human-readable description of the error
func (e *ChainError) Error() string {
	msg := fmt.Sprintf("%s on network %s", e.Detail, e.Network)
	if e.err != nil {
		msg = fmt.Sprintf("%s; %s", msg, e.err.Error())
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ChainError) Unwrap() error {
	return e.err
}

// Kind returns the machine-readable error kind
func (e *ChainError) Kind() string {
	return "chain_error"
}

// EncodingError indicates request material could not be encoded or decoded
type EncodingError struct {
	Detail string
}

// Error returns a human-readable description of the error
func (e *EncodingError) Error() string {
	return e.Detail
}

// Kind returns the machine-readable error kind
func (e *EncodingError) Kind() string {
	return "validation_error"
}
