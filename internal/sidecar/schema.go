package sidecar

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Structural schemas for the three sidecar document types. These check the
// invariants the pipeline relies on (schema header, file block with a
// content hash) rather than every payload field; payload sections are
// allowed to grow without a schema bump.
const (
	fileBlockSchema = `{
		"type": "object",
		"required": ["path", "hash_sha256"],
		"properties": {
			"path": {"type": "string", "minLength": 1},
			"stem": {"type": "string"},
			"size_bytes": {"type": "integer"},
			"mtime": {"type": "integer"},
			"hash_sha256": {"type": "string", "minLength": 1}
		}
	}`

	matchSchema = `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["schema", "file", "match"],
		"properties": {
			"schema": {
				"type": "object",
				"required": ["type", "version"],
				"properties": {
					"type": {"const": "match_segment"},
					"version": {"type": "integer", "minimum": 1}
				}
			},
			"file": {"$ref": "sidecar:file"},
			"local_tags": {"type": "object"},
			"catalog": {"type": ["object", "null"]},
			"match": {
				"type": "object",
				"required": ["status"],
				"properties": {
					"status": {"enum": ["matched", "unmatched"]}
				}
			}
		}
	}`

	analysisSchema = `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["schema", "file", "features"],
		"properties": {
			"schema": {
				"type": "object",
				"required": ["type", "version"],
				"properties": {
					"type": {"const": "analysis_segment"},
					"version": {"type": "integer", "minimum": 1}
				}
			},
			"file": {"$ref": "sidecar:file"},
			"features": {"type": "object"},
			"genre": {"type": "object"},
			"mood": {"type": "object"},
			"instruments": {"type": "object"}
		}
	}`

	finalSchema = `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["schema", "file", "merge"],
		"properties": {
			"schema": {
				"type": "object",
				"required": ["type", "version", "sources"],
				"properties": {
					"type": {"const": "track_final"},
					"version": {"type": "integer", "minimum": 1},
					"sources": {"type": "object"}
				}
			},
			"file": {"$ref": "sidecar:file"},
			"match": {"type": "object"},
			"merge": {
				"type": "object",
				"required": ["created_at"],
				"properties": {
					"created_at": {"type": "string", "minLength": 1}
				}
			}
		}
	}`
)

var (
	schemaOnce sync.Once
	schemaErr  error
	compiled   map[Stage]*jsonschema.Schema
)

func compileSchemas() {
	compiler := jsonschema.NewCompiler()

	resources := map[string]string{
		"sidecar:file":     fileBlockSchema,
		"sidecar:match":    matchSchema,
		"sidecar:analysis": analysisSchema,
		"sidecar:final":    finalSchema,
	}

	for url, raw := range resources {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			schemaErr = fmt.Errorf("failed to parse schema %s: %w", url, err)
			return
		}
		if err := compiler.AddResource(url, doc); err != nil {
			schemaErr = fmt.Errorf("failed to add schema %s: %w", url, err)
			return
		}
	}

	compiled = make(map[Stage]*jsonschema.Schema, 3)
	for stage, url := range map[Stage]string{
		StageMatch:    "sidecar:match",
		StageAnalysis: "sidecar:analysis",
		StageFinal:    "sidecar:final",
	} {
		sch, err := compiler.Compile(url)
		if err != nil {
			schemaErr = fmt.Errorf("failed to compile schema %s: %w", url, err)
			return
		}
		compiled[stage] = sch
	}
}

// validate checks raw sidecar bytes against the schema owned by stage.
func validate(stage Stage, data []byte) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}

	sch, ok := compiled[stage]
	if !ok {
		return fmt.Errorf("no schema for stage %q", stage)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}

	return sch.Validate(inst)
}
