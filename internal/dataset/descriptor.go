package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

const UnknownClass = "Unknown"

// ClassNames maps class ids to names. It decodes both the list form
// (names: [a, b]) and the index map form (names: {0: a, 1: b}).
type ClassNames map[int]string

func (n ClassNames) Name(id int) string {
	if name, ok := n[id]; ok {
		return name
	}
	return UnknownClass
}

// List returns the names ordered by class id.
func (n ClassNames) List() []string {
	ids := make([]int, 0, len(n))
	for id := range n {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, n[id])
	}
	return out
}

func NamesFromList(names []string) ClassNames {
	out := make(ClassNames, len(names))
	for i, name := range names {
		out[i] = name
	}
	return out
}

func (n *ClassNames) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*n = NamesFromList(list)
		return nil
	case yaml.MappingNode:
		var m map[int]string
		if err := value.Decode(&m); err != nil {
			return err
		}
		*n = m
		return nil
	default:
		return fmt.Errorf("line %d: names must be a list or an id map", value.Line)
	}
}

// MarshalYAML writes contiguous ids as a list and anything else as a map.
func (n ClassNames) MarshalYAML() (interface{}, error) {
	for i := 0; i < len(n); i++ {
		if _, ok := n[i]; !ok {
			return map[int]string(n), nil
		}
	}
	return n.List(), nil
}

// Descriptor is the dataset file consumed by the training library (data.yaml).
type Descriptor struct {
	Path  string     `yaml:"path,omitempty"`
	Train string     `yaml:"train"`
	Val   string     `yaml:"val"`
	Test  string     `yaml:"test,omitempty"`
	NC    int        `yaml:"nc,omitempty"`
	Names ClassNames `yaml:"names"`
}

// NewDescriptor describes layout with the given class names in id order.
func NewDescriptor(layout Layout, classes []string) *Descriptor {
	root := layout.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	return &Descriptor{
		Path:  root,
		Train: filepath.Join(SplitTrain, imagesDir),
		Val:   filepath.Join(SplitVal, imagesDir),
		NC:    len(classes),
		Names: NamesFromList(classes),
	}
}

func (d *Descriptor) Validate() error {
	if d.Train == "" || d.Val == "" {
		return errors.New("descriptor must set both train and val")
	}
	if len(d.Names) == 0 {
		return errors.New("descriptor has no class names")
	}
	if d.NC != 0 && d.NC != len(d.Names) {
		return fmt.Errorf("descriptor nc is %d but %d names are listed", d.NC, len(d.Names))
	}
	return nil
}

func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse descriptor %s: %w", path, err)
	}

	return &d, nil
}

func (d *Descriptor) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create descriptor dir: %w", err)
	}

	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}
