package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/paveg/fruitflow/internal/errors"
)

// WriteJSON writes v as indented JSON atomically
func WriteJSON(path string, v any) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
		return nil
	})
}

// ReadJSON decodes the JSON file at path into v. A missing file is reported
// as a missing input.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewMissingInputError(path)
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshaling %s: %w", path, err)
	}
	return nil
}
