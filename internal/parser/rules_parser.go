package parser

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gpu-log-summary/backend/internal/models"
)

// ParseExtractionRules parses a YAML rules file with extra column aliases and label rules.
func ParseExtractionRules(filePath string) (*models.ExtractionRules, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseExtractionRulesFromReader(file)
}

// ParseExtractionRulesFromReader parses rules from an io.Reader.
func ParseExtractionRulesFromReader(r io.Reader) (*models.ExtractionRules, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var rules models.ExtractionRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, err
	}

	return &rules, nil
}

// BuildRegistry returns the built-in extractors extended with rules.
// A column alias named in rules moves to that column and is removed from
// every other one; the column's existing aliases still resolve first.
// Label rules are appended after the built-ins, so they only add labels.
// A nil rules value yields the default registry.
func BuildRegistry(rules *models.ExtractionRules) (*Registry, error) {
	if rules == nil {
		return NewRegistry(), nil
	}

	columns, err := mergeColumns(DefaultTableColumns(), rules.Columns)
	if err != nil {
		return nil, err
	}

	labelRules := DefaultLabelRules()
	for i, spec := range rules.Labels {
		rule, err := buildLabelRule(spec)
		if err != nil {
			return nil, fmt.Errorf("label rule %d: %w", i, err)
		}
		labelRules = append(labelRules, rule)
	}

	return NewRegistryWith(
		NewTableExtractor(columns),
		NewKeyValueExtractor(NewLabelClassifier(labelRules)),
	), nil
}

func mergeColumns(columns []TableColumn, extra map[string][]string) ([]TableColumn, error) {
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("invalid column name: %q", name)
		}

		aliases := extra[name]
		normalized := make([]string, 0, len(aliases))
		for _, a := range aliases {
			if a = normalizeHeader(a); a != "" {
				normalized = append(normalized, a)
			}
		}

		for i := range columns {
			if columns[i].Name == name {
				continue
			}
			kept := make([]string, 0, len(columns[i].Aliases))
			for _, a := range columns[i].Aliases {
				if !slices.Contains(normalized, a) {
					kept = append(kept, a)
				} else if columns[i].Name == DeviceColumn {
					return nil, fmt.Errorf("column %s: alias %q identifies the device column", name, a)
				}
			}
			columns[i].Aliases = kept
		}

		found := false
		for i := range columns {
			if columns[i].Name == name {
				columns[i].Aliases = append(columns[i].Aliases, normalized...)
				found = true
				break
			}
		}
		if found {
			continue
		}

		// Unknown names become new metric columns.
		transform := ParseNumber
		if strings.HasSuffix(name, "_mhz") {
			transform = NormalizeClock
		}
		columns = append(columns, TableColumn{
			Name:      name,
			Metric:    models.MetricKey(name),
			Aliases:   normalized,
			Transform: transform,
		})
	}
	return columns, nil
}

func buildLabelRule(spec models.LabelRuleSpec) (LabelRule, error) {
	kind, err := ParseMatchKind(spec.Match)
	if err != nil {
		return LabelRule{}, err
	}
	transform, err := ParseTransform(spec.Transform)
	if err != nil {
		return LabelRule{}, err
	}
	label := strings.TrimSpace(spec.Label)
	if label == "" {
		return LabelRule{}, fmt.Errorf("empty label")
	}
	metric := strings.TrimSpace(spec.Metric)
	if metric == "" {
		return LabelRule{}, fmt.Errorf("empty metric for label %q", label)
	}
	return LabelRule{
		Kind:      kind,
		Pattern:   label,
		Metric:    models.MetricKey(metric),
		Transform: transform,
	}, nil
}
