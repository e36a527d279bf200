// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison with errors.Is
var (
	// Structural errors: the bytecode itself is malformed.
	ErrUnknownOpcode       = errors.New("unknown opcode")
	ErrTruncated           = errors.New("truncated instruction")
	ErrInvalidJumpTarget   = errors.New("invalid jump target")
	ErrMalformedTry        = errors.New("TRY without catch or finally")
	ErrUnmatchedEndTry     = errors.New("ENDTRY outside of a try or catch region")
	ErrUnmatchedEndFinally = errors.New("ENDFINALLY outside of a finally region")

	// ErrInvariant marks an internal consistency failure. It is never a user error.
	ErrInvariant = errors.New("invariant violation")

	ErrOptimizationFailed = errors.New("optimization failed")
	ErrUnknownStrategy    = errors.New("unknown optimization strategy")

	ErrArtifactFormat  = errors.New("invalid artifact")
	ErrArtifactVersion = errors.New("unsupported artifact format version")
	ErrMarshalFailed   = errors.New("failed to marshal artifact")
	ErrUnmarshalFailed = errors.New("failed to unmarshal artifact")

	ErrConfig     = errors.New("configuration error")
	ErrValidation = errors.New("validation error")
	ErrStore      = errors.New("report store error")
)

// Wrap functions for consistent error wrapping
func WrapUnknownOpcode(offset int, op byte) error {
	return fmt.Errorf("%w 0x%02x at offset %d", ErrUnknownOpcode, op, offset)
}

func WrapTruncated(offset int, need, have int) error {
	return fmt.Errorf("%w at offset %d: need %d bytes, have %d", ErrTruncated, offset, need, have)
}

func WrapInvalidJumpTarget(offset, target int) error {
	return fmt.Errorf("%w: instruction at %d points to %d", ErrInvalidJumpTarget, offset, target)
}

func WrapMalformedTry(offset int) error {
	return fmt.Errorf("%w at offset %d", ErrMalformedTry, offset)
}

func WrapUnmatchedEndTry(offset int) error {
	return fmt.Errorf("%w at offset %d", ErrUnmatchedEndTry, offset)
}

func WrapUnmatchedEndFinally(offset int) error {
	return fmt.Errorf("%w at offset %d", ErrUnmatchedEndFinally, offset)
}

func WrapInvariant(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvariant, msg)
}

func WrapOptimizationFailed(pass string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrOptimizationFailed, pass, err)
}

func WrapUnknownStrategy(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
}

func WrapArtifactFormat(msg string) error {
	return fmt.Errorf("%w: %s", ErrArtifactFormat, msg)
}

func WrapArtifactVersion(version, constraint string) error {
	return fmt.Errorf("%w: %s (supported: %s)", ErrArtifactVersion, version, constraint)
}

func WrapMarshalFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrMarshalFailed, err)
}

func WrapUnmarshalFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
}

func WrapConfigError(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrConfig, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrConfig, msg, err)
}

func WrapValidationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func WrapStoreError(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, msg, err)
}

// IsStructural reports whether err describes malformed bytecode rather than
// a failure of the optimizer itself.
func IsStructural(err error) bool {
	for _, target := range []error{
		ErrUnknownOpcode,
		ErrTruncated,
		ErrInvalidJumpTarget,
		ErrMalformedTry,
		ErrUnmatchedEndTry,
		ErrUnmatchedEndFinally,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
