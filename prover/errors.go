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

// InputError indicates a witness input assignment could not be used
type InputError struct {
	Detail string
}

// Error returns a human-readable description of the error
func (e *InputError) Error() string {
	return e.Detail
}

// Kind returns the machine-readable error kind
func (e *InputError) Kind() string {
	return "validation_error"
}

// StateError indicates a proof was requested against a circuit whose recorded
// state cannot support proof generation
type StateError struct {
	Detail string
}

// Error returns a human-readable description of the error
func (e *StateError) Error() string {
	return e.Detail
}

// Kind returns the machine-readable error kind
func (e *StateError) Kind() string {
	return "invariant_violation"
}
