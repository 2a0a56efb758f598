// Package directory is the public list of employees that anonymous feedback
// can be attributed to. It is independent of enrolment.
package directory

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

var ErrDuplicateID = errors.New("duplicate employee id")

// Entry is one employee as shown on the feedback page.
type Entry struct {
	EmployeeID   string `yaml:"employee_id" json:"employee_id"`
	EmployeeName string `yaml:"employee_name" json:"employee_name"`
}

type file struct {
	Employees []Entry `yaml:"employees"`
}

// Directory is immutable after load.
type Directory struct {
	entries []Entry
	byID    map[string]string
}

// Default returns the embedded directory.
func Default() *Directory {
	d, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded directory: %v", err))
	}
	return d
}

// Load reads a YAML directory file, or the embedded default when path is empty.
func Load(path string) (*Directory, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	return Parse(b)
}

// Parse decodes a directory document. Blank ids are skipped; duplicate ids are an error.
func Parse(b []byte) (*Directory, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse directory: %w", err)
	}
	d := &Directory{byID: make(map[string]string, len(f.Employees))}
	for _, e := range f.Employees {
		e.EmployeeID = strings.TrimSpace(e.EmployeeID)
		e.EmployeeName = strings.TrimSpace(e.EmployeeName)
		if e.EmployeeID == "" {
			continue
		}
		if _, dup := d.byID[e.EmployeeID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, e.EmployeeID)
		}
		d.byID[e.EmployeeID] = e.EmployeeName
		d.entries = append(d.entries, e)
	}
	return d, nil
}

// Entries returns the employees in file order.
func (d *Directory) Entries() []Entry {
	return append([]Entry(nil), d.entries...)
}

// Name resolves an employee id.
func (d *Directory) Name(id string) (string, bool) {
	name, ok := d.byID[id]
	return name, ok
}
