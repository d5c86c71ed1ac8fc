package libspec

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// words reads a word list written as a space separated scalar ("H1 O16"),
// a YAML sequence or a single integer.
func words(value *yaml.Node) ([]string, error) {
	switch value.Kind {
	case yaml.ScalarNode:
		return strings.Fields(value.Value), nil
	case yaml.SequenceNode:
		var out []string
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: expected a scalar", item.Line)
			}
			out = append(out, strings.Fields(item.Value)...)
		}
		return out, nil
	case 0:
		return nil, nil
	}
	return nil, fmt.Errorf("line %d: expected a word list", value.Line)
}

// parseTemperatures reads temperatures in kelvin from a word-list node.
func parseTemperatures(value *yaml.Node) ([]int, error) {
	ws, err := words(value)
	if err != nil {
		return nil, err
	}
	return atois(ws)
}

func atois(ws []string) ([]int, error) {
	out := make([]int, 0, len(ws))
	for _, w := range ws {
		t, err := strconv.Atoi(w)
		if err != nil {
			return nil, fmt.Errorf("temperature %q is not an integer", w)
		}
		if t < 0 {
			return nil, fmt.Errorf("temperature %d is negative", t)
		}
		out = append(out, t)
	}
	return out, nil
}

// ParseTemperatures reads a space or comma separated list of kelvin values,
// as accepted by --temperatures.
func ParseTemperatures(s string) ([]int, error) {
	return atois(strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' }))
}
