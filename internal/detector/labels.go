package detector

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hotspot-detector/geodetect/internal/errors"
)

// LoadLabels reads a class-name table. YAML files follow the Ultralytics
// data.yaml layout, where names is either a list or an index map; any
// other file is read as one label per line.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, labelError(err, path)
	}

	var labels []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		labels, err = parseDataYAML(data)
	default:
		labels, err = parseLabelLines(data)
	}
	if err != nil {
		return nil, labelError(err, path)
	}
	return labels, nil
}

func labelError(err error, path string) error {
	return errors.New(err).
		Component("detector").
		Category(errors.CategoryLabelLoad).
		FileContext(path, 0).
		Build()
}

type dataYAML struct {
	NC    int       `yaml:"nc"`
	Names yaml.Node `yaml:"names"`
}

func parseDataYAML(data []byte) ([]string, error) {
	var doc dataYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse data.yaml: %w", err)
	}
	if doc.Names.Kind == 0 {
		return nil, fmt.Errorf("data.yaml has no names")
	}
	names, err := namesFromNode(&doc.Names)
	if err != nil {
		return nil, err
	}
	if doc.NC != 0 && doc.NC != len(names) {
		return nil, fmt.Errorf("data.yaml declares nc=%d but lists %d names", doc.NC, len(names))
	}
	return names, nil
}

// ParseNames parses a names value such as "{0: 'crack', 1: 'hotspot'}"
// or "[crack, hotspot]", the form exported models store in their metadata.
func ParseNames(s string) ([]string, error) {
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(s), &n); err != nil {
		return nil, fmt.Errorf("parse names: %w", err)
	}
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		return namesFromNode(n.Content[0])
	}
	return namesFromNode(&n)
}

func namesFromNode(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := n.Decode(&names); err != nil {
			return nil, fmt.Errorf("decode names list: %w", err)
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("names list is empty")
		}
		return names, nil

	case yaml.MappingNode:
		var byIndex map[int]string
		if err := n.Decode(&byIndex); err != nil {
			return nil, fmt.Errorf("decode names map: %w", err)
		}
		if len(byIndex) == 0 {
			return nil, fmt.Errorf("names map is empty")
		}
		names := make([]string, len(byIndex))
		for i := range names {
			name, ok := byIndex[i]
			if !ok {
				return nil, fmt.Errorf("names map is missing index %d", i)
			}
			names[i] = name
		}
		return names, nil

	default:
		return nil, fmt.Errorf("names must be a list or an index map")
	}
}

// parseLabelLines reads one label per line, ignoring blank lines.
func parseLabelLines(data []byte) ([]string, error) {
	var labels []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("label file is empty")
	}
	return labels, nil
}
