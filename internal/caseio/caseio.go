// Package caseio reads manual case files: one address and the suspects tied to it.
package caseio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
)

// CaseFile is the YAML document accepted by link-address.
//
//	address: 123 Main St
//	suspects:
//	  - name: John Doe
//	    relationship: resident
//	    confidence: 0.95
type CaseFile struct {
	Address  string                     `yaml:"address"`
	Suspects []apptype.SuspectAssertion `yaml:"suspects"`
}

// Decode parses a case file from r. Unknown keys are rejected so typos surface early.
func Decode(r io.Reader) (*CaseFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var cf CaseFile
	if err := dec.Decode(&cf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("case file is empty")
		}
		return nil, fmt.Errorf("failed to decode case file: %w", err)
	}
	cf.Address = strings.TrimSpace(cf.Address)
	if cf.Address == "" {
		return nil, fmt.Errorf("case file has no address")
	}
	return &cf, nil
}

// Load reads and decodes the case file at path.
func Load(path string) (*CaseFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file %s: %w", path, err)
	}
	return Decode(bytes.NewReader(data))
}

// Encode writes cf as YAML.
func Encode(w io.Writer, cf *CaseFile) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cf); err != nil {
		return fmt.Errorf("failed to encode case file: %w", err)
	}
	return enc.Close()
}
