package services

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sophialabs/fixturemock/internal/domain/fixture"
	"github.com/sophialabs/fixturemock/internal/domain/jsonvalue"
)

// IsFixtureFile reports whether name has an extension fixture documents use.
func IsFixtureFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// NodeHook rewrites a YAML tree before it is converted, for example to
// resolve includes.
type NodeHook func(*yaml.Node) error

// ParseDocument decodes a fixture document into a JSON value. Files ending
// in .yaml or .yml are read as YAML, everything else as JSON. Hooks only
// apply to YAML documents.
func ParseDocument(name string, data []byte, hooks ...NodeHook) (jsonvalue.Value, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return jsonvalue.Value{}, fmt.Errorf("%w: parse YAML: %v", fixture.ErrInvalidFixture, err)
		}
		for _, hook := range hooks {
			if err := hook(&root); err != nil {
				return jsonvalue.Value{}, fmt.Errorf("%w: %v", fixture.ErrInvalidFixture, err)
			}
		}
		v, err := yamlToValue(&root)
		if err != nil {
			return jsonvalue.Value{}, fmt.Errorf("%w: %v", fixture.ErrInvalidFixture, err)
		}
		return v, nil
	default:
		v, err := jsonvalue.Parse(data)
		if err != nil {
			return jsonvalue.Value{}, fmt.Errorf("%w: parse JSON: %v", fixture.ErrInvalidFixture, err)
		}
		return v, nil
	}
}

func yamlToValue(n *yaml.Node) (jsonvalue.Value, error) {
	switch n.Kind {
	case 0:
		return jsonvalue.Null(), nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return jsonvalue.Null(), nil
		}
		return yamlToValue(n.Content[0])
	case yaml.AliasNode:
		return yamlToValue(n.Alias)
	case yaml.SequenceNode:
		items := make([]jsonvalue.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := yamlToValue(c)
			if err != nil {
				return jsonvalue.Value{}, err
			}
			items = append(items, v)
		}
		return jsonvalue.Array(items...), nil
	case yaml.MappingNode:
		members := make([]jsonvalue.Member, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return jsonvalue.Value{}, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			val, err := yamlToValue(v)
			if err != nil {
				return jsonvalue.Value{}, err
			}
			members = append(members, jsonvalue.Member{Key: k.Value, Value: val})
		}
		return jsonvalue.Object(members...), nil
	case yaml.ScalarNode:
		return yamlScalar(n)
	default:
		return jsonvalue.Value{}, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}

func yamlScalar(n *yaml.Node) (jsonvalue.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return jsonvalue.Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return jsonvalue.Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return jsonvalue.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return jsonvalue.Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return jsonvalue.Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return jsonvalue.Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return jsonvalue.Value{}, fmt.Errorf("line %d: %s is not representable in JSON", n.Line, n.Value)
		}
		return jsonvalue.Number(strconv.FormatFloat(f, 'g', -1, 64)), nil
	default:
		return jsonvalue.String(n.Value), nil
	}
}
