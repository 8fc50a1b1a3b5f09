package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hydrolab/flowsolve/internal/expressions"
)

// runSolve solves a flowsheet document from a file or stdin and prints the
// result as JSON.
func runSolve(args []string) error {
	fs := flag.NewFlagSet("solve", flag.ExitOnError)
	file := fs.String("f", "-", "flowsheet document (JSON or YAML), - for stdin")
	query := fs.String("query", "", "jq expression applied to the solve result")
	strict := fs.Bool("strict", false, "fail when equipment references unregistered streams")
	tolerance := fs.Float64("tolerance", 0, "convergence tolerance (default 1e-6)")
	maxIterations := fs.Int("max-iterations", 0, "iteration ceiling (default 100)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Strict = cfg.Strict || *strict
	if *tolerance > 0 {
		cfg.Tolerance = *tolerance
	}
	if *maxIterations > 0 {
		cfg.MaxIterations = *maxIterations
	}

	raw, err := loadDocument(*file)
	if err != nil {
		return err
	}

	_, v, slv, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	slv.WithLogger(newLogger(cfg.LogLevel))

	doc, vres := v.Validate(raw)
	if !vres.Valid() {
		printJSON(map[string]any{"error": "flowsheet validation failed", "validation": vres})
		return fmt.Errorf("%d validation error(s)", len(vres.Errors))
	}

	result := slv.Solve(context.Background(), doc)

	if *query != "" {
		filtered, err := applyQuery(*query, result)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		printJSON(filtered)
	} else {
		printJSON(result)
	}

	if !result.Success {
		return fmt.Errorf("solve failed")
	}
	return nil
}

// runValidate checks a flowsheet document and prints the findings.
func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	file := fs.String("f", "-", "flowsheet document (JSON or YAML), - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	raw, err := loadDocument(*file)
	if err != nil {
		return err
	}

	_, v, _, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	_, vres := v.Validate(raw)
	printJSON(map[string]any{"valid": vres.Valid(), "validation": vres})
	if !vres.Valid() {
		return fmt.Errorf("%d validation error(s)", len(vres.Errors))
	}
	return nil
}

// loadDocument reads a flowsheet document and returns it as JSON. YAML input
// is converted preserving the equipment declaration order, which fixes the
// solver's sweep order.
func loadDocument(path string) ([]byte, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read flowsheet: %w", err)
	}

	if json.Valid(raw) {
		return raw, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("document is neither valid JSON nor YAML: %w", err)
	}
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 {
		return nil, fmt.Errorf("empty flowsheet document")
	}
	return yamlNodeJSON(node.Content[0])
}

// yamlNodeJSON converts a YAML node tree to JSON, keeping mapping key order.
func yamlNodeJSON(node *yaml.Node) ([]byte, error) {
	switch node.Kind {
	case yaml.MappingNode:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i := 0; i+1 < len(node.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(node.Content[i].Value)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			val, err := yamlNodeJSON(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			buf.Write(val)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case yaml.SequenceNode:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, child := range node.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			val, err := yamlNodeJSON(child)
			if err != nil {
				return nil, err
			}
			buf.Write(val)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	case yaml.AliasNode:
		return yamlNodeJSON(node.Alias)

	default:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
}

// applyQuery runs a jq expression over the JSON form of a value.
func applyQuery(query string, result any) (any, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return expressions.NewGoJQEngine().Evaluate(context.Background(), query, doc)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "flowsolve: encode result:", err)
		return
	}
	fmt.Println(string(data))
}
