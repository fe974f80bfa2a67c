package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "REMINDCTL_"

// settings are the client credentials kept next to the local state file.
type settings struct {
	Server string `koanf:"server"`
	Token  string `koanf:"token"`
}

func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".remind"
	}
	return filepath.Join(dir, "remind")
}

// loadSettings reads remindctl.yaml from dir, then REMINDCTL_* variables.
func loadSettings(dir string) (settings, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(settings{Server: "http://localhost:8080"}, "koanf"), nil); err != nil {
		return settings{}, err
	}
	path := filepath.Join(dir, "remindctl.yaml")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return settings{}, fmt.Errorf("load %s: %w", path, err)
	}
	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(k, envPrefix)), v
		},
	}), nil)
	if err != nil {
		return settings{}, fmt.Errorf("load env: %w", err)
	}

	var s settings
	if err := k.Unmarshal("", &s); err != nil {
		return settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return s, nil
}

func saveSettings(dir string, s settings) error {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(s, "koanf"), nil); err != nil {
		return err
	}
	data, err := k.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return os.WriteFile(filepath.Join(dir, "remindctl.yaml"), data, 0o600)
}
