package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/use-agent/seiassign/models"
	"gopkg.in/yaml.v3"
)

// attributeKeys are the accepted names of the handler field, in priority order.
var attributeKeys = []string{"attribute", "atributo"}

// LoadTerms reads and validates the term file at path.
func LoadTerms(path string) ([]models.TermRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.ConfigError("terms file %s not found", path)
		}
		return nil, models.NewAssignError(models.ErrCodeConfig, "failed to read terms file", err)
	}
	return ParseTerms(data)
}

// ParseTerms decodes a term → {attribute: handler} mapping. JSON and YAML
// are both accepted; rule order follows the file.
func ParseTerms(data []byte) ([]models.TermRule, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(untabJSON(data), &doc); err != nil {
		return nil, models.NewAssignError(models.ErrCodeConfig, "terms file is not valid JSON or YAML", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, models.ConfigError("terms file is empty")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, models.ConfigError("terms file must be a mapping of term to {attribute: handler}")
	}
	if len(root.Content) == 0 {
		return nil, models.ConfigError("terms file is empty")
	}

	seen := make(map[string]struct{}, len(root.Content)/2)
	rules := make([]models.TermRule, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]

		if keyNode.Kind != yaml.ScalarNode {
			return nil, models.ConfigError("invalid term at line %d", keyNode.Line)
		}
		term := strings.TrimSpace(keyNode.Value)
		if term == "" {
			return nil, models.ConfigError("empty term at line %d", keyNode.Line)
		}
		if _, dup := seen[term]; dup {
			return nil, models.ConfigError("duplicate term %q", term)
		}
		seen[term] = struct{}{}

		if valNode.Kind != yaml.MappingNode {
			return nil, models.ConfigError("invalid entry for term %q: expected an object", term)
		}
		handler, err := attributeOf(term, valNode)
		if err != nil {
			return nil, err
		}
		rules = append(rules, models.TermRule{Term: term, Handler: handler})
	}
	return rules, nil
}

func attributeOf(term string, entry *yaml.Node) (string, error) {
	fields := make(map[string]*yaml.Node, len(entry.Content)/2)
	for i := 0; i+1 < len(entry.Content); i += 2 {
		fields[entry.Content[i].Value] = entry.Content[i+1]
	}
	for _, key := range attributeKeys {
		node, ok := fields[key]
		if !ok {
			continue
		}
		if node.Kind != yaml.ScalarNode || node.Tag != "!!str" {
			return "", models.ConfigError("attribute for term %q must be a string", term)
		}
		handler := strings.TrimSpace(node.Value)
		if handler == "" {
			return "", models.ConfigError("attribute for term %q is empty", term)
		}
		return handler, nil
	}
	return "", models.ConfigError("attribute missing for term %q", term)
}

// untabJSON replaces tab indentation in JSON input, which YAML rejects.
// JSON strings cannot span lines, so leading tabs are never string content.
func untabJSON(data []byte) []byte {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		return data
	}
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		j := 0
		for j < len(line) && (line[j] == '\t' || line[j] == ' ') {
			j++
		}
		lines[i] = strings.ReplaceAll(line[:j], "\t", "    ") + line[j:]
	}
	return []byte(strings.Join(lines, "\n"))
}
