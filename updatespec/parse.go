/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package updatespec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawEntry is one repository entry before validation: a single-value
// target or an external [source, target] pair.
type rawEntry struct {
	repo   string
	values []string
}

// rawScope is one top-level scope in input order.
type rawScope struct {
	name    string
	entries []rawEntry
}

type config struct {
	rootRepo string
}

// Option adjusts parsing and validation.
type Option func(*config)

// WithRootRepo overrides the root manifest repository the external scope
// must contain.
func WithRootRepo(name string) Option {
	return func(c *config) { c.rootRepo = name }
}

// Load reads and validates an update specification from path. The file
// extension selects the format: .json, .yaml, or .yml.
func Load(path string, opts ...Option) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading update specification: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return ParseJSON(data, opts...)
	case ".yaml", ".yml":
		return ParseYAML(data, opts...)
	default:
		return nil, fmt.Errorf("update specification %s: unsupported extension %q (want .json, .yaml, or .yml)", path, ext)
	}
}

// ParseJSON parses and validates a JSON update specification. Duplicate
// keys at either nesting level are rejected, encoding/json would
// silently keep the last value otherwise.
func ParseJSON(data []byte, opts ...Option) (*Spec, error) {
	scopes, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	return build(scopes, opts...)
}

// ParseYAML parses and validates a YAML update specification.
func ParseYAML(data []byte, opts ...Option) (*Spec, error) {
	scopes, err := decodeYAML(data)
	if err != nil {
		return nil, err
	}
	return build(scopes, opts...)
}

func decodeJSON(data []byte) ([]rawScope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("update specification must be a JSON object: %w", err)
	}

	var scopes []rawScope
	var errs []error
	seenScopes := map[string]bool{}
	for dec.More() {
		name, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		if seenScopes[name] {
			errs = append(errs, fmt.Errorf("duplicate scope key %q", name))
		}
		seenScopes[name] = true

		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("scope %q must be an object: %w", name, err)
		}

		scope := rawScope{name: name}
		seenRepos := map[string]bool{}
		for dec.More() {
			repo, err := readKey(dec)
			if err != nil {
				return nil, err
			}
			if seenRepos[repo] {
				errs = append(errs, fmt.Errorf("scope %q: duplicate repository key %q", name, repo))
			}
			seenRepos[repo] = true

			values, err := readValues(dec)
			if err != nil {
				return nil, fmt.Errorf("scope %q, repository %q: %w", name, repo, err)
			}
			scope.entries = append(scope.entries, rawEntry{repo: repo, values: values})
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return scopes, nil
}

func expectDelim(dec *json.Decoder, want rune) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || rune(d) != want {
		return fmt.Errorf("unexpected token %v, want %q", tok, want)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("unexpected key token %v", tok)
	}
	return key, nil
}

// readValues reads a revision value: either a bare string or a list of
// strings.
func readValues(dec *json.Decoder) ([]string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case string:
		return []string{v}, nil
	case json.Delim:
		if rune(v) != '[' {
			return nil, fmt.Errorf("unexpected %v, want a revision string or list", v)
		}
		var values []string
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			s, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("revision list element %v is not a string", tok)
			}
			values = append(values, s)
		}
		if err := expectDelim(dec, ']'); err != nil {
			return nil, err
		}
		return values, nil
	default:
		return nil, fmt.Errorf("unexpected value %v, want a revision string or list", tok)
	}
}

func decodeYAML(data []byte) ([]rawScope, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing YAML update specification: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, errors.New("update specification is empty")
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, errors.New("update specification must be a mapping")
	}

	var scopes []rawScope
	for i := 0; i < len(top.Content); i += 2 {
		nameNode, valNode := top.Content[i], top.Content[i+1]
		if valNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("scope %q must be a mapping", nameNode.Value)
		}
		scope := rawScope{name: nameNode.Value}
		for j := 0; j < len(valNode.Content); j += 2 {
			repoNode, revNode := valNode.Content[j], valNode.Content[j+1]
			entry := rawEntry{repo: repoNode.Value}
			switch revNode.Kind {
			case yaml.ScalarNode:
				entry.values = []string{revNode.Value}
			case yaml.SequenceNode:
				for _, el := range revNode.Content {
					if el.Kind != yaml.ScalarNode {
						return nil, fmt.Errorf("scope %q, repository %q: revision list elements must be scalars", scope.name, entry.repo)
					}
					entry.values = append(entry.values, el.Value)
				}
			default:
				return nil, fmt.Errorf("scope %q, repository %q: want a revision string or list", scope.name, entry.repo)
			}
			scope.entries = append(scope.entries, entry)
		}
		scopes = append(scopes, scope)
	}
	return scopes, nil
}
