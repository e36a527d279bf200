// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"strings"

	"github.com/dotandev/stackopt/internal/optimizer"
)

// NewReport builds the report of one optimization. res may be nil when the
// run failed with err.
func NewReport(name, hash string, passes []string, res *optimizer.Result, err error) *Report {
	r := &Report{
		Name:   name,
		Hash:   hash,
		Passes: strings.Join(passes, ","),
	}
	if res != nil {
		st := res.Stats
		r.OriginalSize = st.OriginalSize
		r.OptimizedSize = st.OptimizedSize
		r.OriginalInstructions = st.OriginalInstructions
		r.OptimizedInstructions = st.OptimizedInstructions
		r.Removed = st.Removed()
		r.DurationMS = st.Duration.Milliseconds()
		r.Fallback = res.Fallback
		if res.Err != nil {
			err = res.Err
		}
	}
	if err != nil {
		r.ErrorMsg = err.Error()
	}
	return r
}
