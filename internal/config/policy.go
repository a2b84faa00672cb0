package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/lp-tools/lpmigrate/internal/types"
)

// ErrInvalidPolicy is returned for a policy file that does not have the
// expected shape. Nothing is applied when it is returned.
var ErrInvalidPolicy = errors.New("invalid policy")

// Task is one entry of the policy file: rules applied to one project.
type Task struct {
	Project        string
	Description    string
	Filter         types.Filter
	Policy         types.Policy
	UpdateExisting bool
}

// LoadPolicy reads and validates a policy file:
//
//	tasks:
//	  - project: fuel
//	    description: retarget 9.0 bugs
//	    filter:
//	      milestone: "9.0"
//	      status: [New, Confirmed]
//	    series:
//	      "9.0": {milestone: "9.0"}
//	      "10.0": {milestone: "10.0", status: New}
//	    update_existing: true
func LoadPolicy(path string) ([]Task, error) {
	data, err := os.ReadFile(path) // #nosec G304 - policy path from caller
	if err != nil {
		return nil, fmt.Errorf("reading policy %s: %w", path, err)
	}
	tasks, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return tasks, nil
}

// ParsePolicy parses policy YAML. Target names that are not qualified with
// the task's project are qualified. Scalars keep their literal text.
func ParsePolicy(data []byte) ([]Task, error) {
	root, err := parseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	if root == nil || root.Kind != yaml.MappingNode {
		return nil, policyError(root, "expected a mapping with a tasks list")
	}

	var tasks []Task
	found := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if key.Value != "tasks" {
			return nil, policyError(key, "unknown key %q", key.Value)
		}
		found = true
		if val.Kind != yaml.SequenceNode {
			return nil, policyError(val, "tasks must be a list")
		}
		for _, item := range val.Content {
			task, err := parseTask(item)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	if !found {
		return nil, policyError(root, "missing tasks")
	}
	return tasks, nil
}

func parseTask(n *yaml.Node) (Task, error) {
	var task Task
	if n.Kind != yaml.MappingNode {
		return task, policyError(n, "task must be a mapping")
	}

	var filterNode, seriesNode *yaml.Node
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		switch key.Value {
		case "project":
			if val.Kind != yaml.ScalarNode || val.Value == "" {
				return task, policyError(val, "project must be a non-empty string")
			}
			task.Project = val.Value
		case "description":
			if val.Kind != yaml.ScalarNode {
				return task, policyError(val, "description must be a string")
			}
			task.Description = val.Value
		case "filter":
			filterNode = val
		case "series":
			seriesNode = val
		case "update_existing":
			b, err := strconv.ParseBool(val.Value)
			if val.Kind != yaml.ScalarNode || err != nil {
				return task, policyError(val, "update_existing must be true or false")
			}
			task.UpdateExisting = b
		default:
			return task, policyError(key, "unknown task key %q", key.Value)
		}
	}

	switch {
	case task.Project == "":
		return task, policyError(n, "task has no project")
	case filterNode == nil:
		return task, policyError(n, "task %s has no filter", task.Project)
	case seriesNode == nil:
		return task, policyError(n, "task %s has no series", task.Project)
	}

	var err error
	if task.Filter, err = parseFilter(filterNode); err != nil {
		return task, err
	}
	if task.Policy, err = parseSeries(&types.Project{Name: task.Project}, seriesNode); err != nil {
		return task, err
	}
	return task, nil
}

func parseFilter(n *yaml.Node) (types.Filter, error) {
	if n.Kind != yaml.MappingNode {
		return nil, policyError(n, "filter must be a mapping")
	}
	filter := make(types.Filter)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			if isNull(val) {
				return nil, policyError(val, "filter %s has no value", key.Value)
			}
			filter[key.Value] = []string{val.Value}
		case yaml.SequenceNode:
			list, err := scalarList(val)
			if err != nil {
				return nil, fmt.Errorf("%w: filter %s: %w", ErrInvalidPolicy, key.Value, err)
			}
			filter[key.Value] = list
		default:
			return nil, policyError(val, "filter %s must be a scalar or a list", key.Value)
		}
	}
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidPolicy, n.Line, err)
	}
	return filter, nil
}

// parseSeries reads the ordered target policy. Field values are checked
// against the enumerations the remote accepts.
func parseSeries(p *types.Project, n *yaml.Node) (types.Policy, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) == 0 {
		return nil, policyError(n, "series must be a non-empty mapping")
	}
	var policy types.Policy
	seen := make(map[string]bool)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		target := p.Qualify(key.Value)
		if seen[target] {
			return nil, policyError(key, "target %s given twice", target)
		}
		seen[target] = true

		values := make(map[string]string)
		switch {
		case isNull(val):
		case val.Kind == yaml.MappingNode:
			for j := 0; j+1 < len(val.Content); j += 2 {
				fk, fv := val.Content[j], val.Content[j+1]
				if fv.Kind != yaml.ScalarNode {
					return nil, policyError(fv, "%s %s must be a scalar", target, fk.Value)
				}
				if isNull(fv) {
					values[fk.Value] = ""
				} else {
					values[fk.Value] = fv.Value
				}
			}
		default:
			return nil, policyError(val, "series %s must be a mapping", key.Value)
		}

		fields, err := types.NewFieldSet(values)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %s: %w", ErrInvalidPolicy, val.Line, target, err)
		}
		if err := checkFieldValues(fields); err != nil {
			return nil, fmt.Errorf("%w: line %d: %s: %w", ErrInvalidPolicy, val.Line, target, err)
		}
		policy = append(policy, types.TargetPolicy{Target: target, Fields: fields})
	}
	return policy, nil
}

func checkFieldValues(fs types.FieldSet) error {
	if s, ok := fs.Get(types.FieldStatus); ok && !types.Status(s).IsValid() {
		return fmt.Errorf("unknown status %q", s)
	}
	if s, ok := fs.Get(types.FieldImportance); ok && !types.Importance(s).IsValid() {
		return fmt.Errorf("unknown importance %q", s)
	}
	return nil
}

func policyError(n *yaml.Node, format string, args ...any) error {
	line := 0
	if n != nil {
		line = n.Line
	}
	return fmt.Errorf("%w: line %d: %s", ErrInvalidPolicy, line, fmt.Sprintf(format, args...))
}
