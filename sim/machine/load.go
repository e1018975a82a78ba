package machine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"
	"gopkg.in/yaml.v3"
)

// LoadYAML reads a machine configuration from a YAML file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadYAML(path string) (*Machines, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading machines: %w", err)
	}
	var m Machines
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing machines %q: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid machines %q: %w", path, err)
	}
	return &m, nil
}

// LoadLua runs a Lua script that returns a table {client = {...}, relay =
// {...}} and maps it onto Machines. Keys use the same snake_case names as the
// YAML form.
func LoadLua(path string) (*Machines, error) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoFile(path); err != nil {
		return nil, fmt.Errorf("running machines script %q: %w", path, err)
	}
	table, ok := L.Get(-1).(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("machines script %q did not return a table", path)
	}

	var m Machines
	if err := gluamapper.Map(table, &m); err != nil {
		return nil, fmt.Errorf("mapping machines %q: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid machines %q: %w", path, err)
	}
	return &m, nil
}

// Load picks LoadLua for .lua files and LoadYAML otherwise.
func Load(path string) (*Machines, error) {
	if strings.EqualFold(filepath.Ext(path), ".lua") {
		return LoadLua(path)
	}
	return LoadYAML(path)
}
