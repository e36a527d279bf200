// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package artifact reads and writes contract artifacts: a CBOR document
// holding the script, its entry points and optional debug info.
package artifact

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/hashicorp/go-version"

	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/debuginfo"
	"github.com/dotandev/stackopt/internal/errors"
)

const (
	// FormatVersion is written into every artifact.
	FormatVersion = "1.0.0"
	// Compatible is the range of format versions this build reads.
	Compatible = ">= 1.0, < 2.0"
)

// Document is the on-disk form of a contract.
type Document struct {
	Format  string                `cbor:"format"`
	Name    string                `cbor:"name"`
	Script  []byte                `cbor:"script"`
	Entries []contract.EntryPoint `cbor:"entries"`
	Debug   *debuginfo.Info       `cbor:"debug,omitempty"`
}

var (
	encMode    cbor.EncMode
	constraint version.Constraints
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("artifact: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	constraint, err = version.NewConstraint(Compatible)
	if err != nil {
		panic(fmt.Sprintf("artifact: bad version constraint: %v", err))
	}
}

// FromContract encodes c into a document.
func FromContract(c *contract.Contract) (*Document, error) {
	code, err := c.Bytes()
	if err != nil {
		return nil, err
	}
	return &Document{
		Format:  FormatVersion,
		Name:    c.Name,
		Script:  code,
		Entries: c.EntryPoints(),
		Debug:   c.Debug,
	}, nil
}

// Contract decodes the script of d.
func (d *Document) Contract() (*contract.Contract, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return contract.Decode(d.Name, d.Script, d.Entries, d.Debug)
}

func (d *Document) check() error {
	if d.Format == "" {
		return errors.WrapArtifactFormat("missing format version")
	}
	v, err := version.NewVersion(d.Format)
	if err != nil {
		return errors.WrapArtifactFormat(fmt.Sprintf("bad format version %q", d.Format))
	}
	if !constraint.Check(v) {
		return errors.WrapArtifactVersion(d.Format, Compatible)
	}
	if len(d.Script) == 0 {
		return errors.WrapArtifactFormat("empty script")
	}
	return nil
}

// Marshal encodes c canonically, so equal contracts give equal bytes.
func Marshal(c *contract.Contract) ([]byte, error) {
	d, err := FromContract(c)
	if err != nil {
		return nil, err
	}
	data, err := encMode.Marshal(d)
	if err != nil {
		return nil, errors.WrapMarshalFailed(err)
	}
	return data, nil
}

// Unmarshal decodes an artifact and its script.
func Unmarshal(data []byte) (*contract.Contract, error) {
	var d Document
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, errors.WrapUnmarshalFailed(err)
	}
	return d.Contract()
}

// Load reads the artifact at path.
func Load(path string) (*contract.Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", path, err)
	}
	c, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Save writes c to path.
func Save(path string, c *contract.Contract) error {
	data, err := Marshal(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing artifact %s: %w", path, err)
	}
	return nil
}
