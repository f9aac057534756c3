package filestore

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed snapshot.schema.json
var snapshotSchemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func snapshotSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("snapshot.json", bytes.NewReader(snapshotSchemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile("snapshot.json")
	})
	return schema, schemaErr
}

// validateDocument checks raw against the snapshot schema.
func validateDocument(raw []byte) error {
	sch, err := snapshotSchema()
	if err != nil {
		return fmt.Errorf("compile snapshot schema: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("snapshot does not match schema: %w", err)
	}
	return nil
}
