package command

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// tableFile is the on-disk layout of a command table.
type tableFile struct {
	Commands []Entry `yaml:"commands"`
}

// LoadFile reads and validates the YAML command table at path.
// Duplicate codes are kept; NewRegistry resolves them.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading command table: %w", err)
	}

	entries, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Parse decodes and validates a YAML command table.
// Unknown keys are rejected so typos in column names fail loudly.
func Parse(data []byte) ([]Entry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file tableFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}

	if err := Validate(file.Commands); err != nil {
		return nil, err
	}
	return file.Commands, nil
}
