package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Write encodes cfg as YAML at path, creating parent directories.
func Write(path string, cfg *Config) error {
	data, err := encode(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func encode(v interface{}) ([]byte, error) {
	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return []byte(buf.String()), nil
}

// AddSensor appends sc to the sensors list of the config file at path.
// It preserves the existing YAML structure and comments.
// A sensor with the same name is an error.
func AddSensor(configPath string, sc SensorConfig) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse as yaml.Node to preserve structure
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return fmt.Errorf("invalid YAML document structure")
	}
	docNode := root.Content[0]
	if docNode.Kind != yaml.MappingNode {
		return fmt.Errorf("expected mapping at document root")
	}

	sensorsNode := findMapValue(docNode, "sensors")
	if sensorsNode == nil || (sensorsNode.Kind == yaml.ScalarNode && sensorsNode.Tag == "!!null") {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if sensorsNode == nil {
			docNode.Content = append(docNode.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "sensors"}, seq)
		} else {
			*sensorsNode = *seq
		}
		sensorsNode = findMapValue(docNode, "sensors")
	}
	if sensorsNode.Kind != yaml.SequenceNode {
		return fmt.Errorf("'sensors' must be a list")
	}

	for _, item := range sensorsNode.Content {
		if name := findMapValue(item, "name"); name != nil && name.Value == sc.Name {
			return fmt.Errorf("sensor '%s' already exists in %s", sc.Name, configPath)
		}
	}

	var entry yaml.Node
	if err := entry.Encode(sc); err != nil {
		return fmt.Errorf("failed to encode sensor: %w", err)
	}
	sensorsNode.Content = append(sensorsNode.Content, &entry)

	out, err := encode(&root)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, out, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// findMapValue finds a value in a mapping node by key name.
func findMapValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i < len(node.Content)-1; i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		if keyNode.Kind == yaml.ScalarNode && keyNode.Value == key {
			return valueNode
		}
	}

	return nil
}
