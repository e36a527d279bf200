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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	assert.NotNil(t, ErrUnknownOpcode)
	assert.NotNil(t, ErrTruncated)
	assert.NotNil(t, ErrInvalidJumpTarget)
	assert.NotNil(t, ErrMalformedTry)
	assert.NotNil(t, ErrUnmatchedEndTry)
	assert.NotNil(t, ErrUnmatchedEndFinally)
	assert.NotNil(t, ErrInvariant)
	assert.NotNil(t, ErrOptimizationFailed)
}

func TestErrorWrapping(t *testing.T) {
	baseErr := fmt.Errorf("base error")

	wrappedErr := WrapOptimizationFailed("remove-dup-drop", baseErr)
	assert.True(t, errors.Is(wrappedErr, ErrOptimizationFailed))
	assert.True(t, errors.Is(wrappedErr, baseErr))
	assert.Contains(t, wrappedErr.Error(), "remove-dup-drop")

	wrappedErr = WrapUnknownOpcode(12, 0xff)
	assert.True(t, errors.Is(wrappedErr, ErrUnknownOpcode))
	assert.Contains(t, wrappedErr.Error(), "0xff")

	wrappedErr = WrapMarshalFailed(baseErr)
	assert.True(t, errors.Is(wrappedErr, ErrMarshalFailed))
	assert.True(t, errors.Is(wrappedErr, baseErr))

	wrappedErr = WrapConfigError("bad file", nil)
	assert.True(t, errors.Is(wrappedErr, ErrConfig))
	assert.Contains(t, wrappedErr.Error(), "bad file")

	wrappedErr = WrapArtifactVersion("3.0.0", ">= 1.0, < 2.0")
	assert.True(t, errors.Is(wrappedErr, ErrArtifactVersion))
	assert.Contains(t, wrappedErr.Error(), "3.0.0")
}

func TestIsStructural(t *testing.T) {
	assert.True(t, IsStructural(WrapMalformedTry(3)))
	assert.True(t, IsStructural(WrapUnmatchedEndFinally(7)))
	assert.True(t, IsStructural(fmt.Errorf("decode: %w", WrapTruncated(1, 4, 2))))
	assert.False(t, IsStructural(WrapInvariant("missing block")))
	assert.False(t, IsStructural(nil))
}
