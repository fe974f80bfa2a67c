package main

import "testing"

func TestSettingsDefaults(t *testing.T) {
	s, err := loadSettings(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Server != "http://localhost:8080" || s.Token != "" {
		t.Errorf("defaults = %+v", s)
	}
}

func TestSettingsSaveAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	if err := saveSettings(dir, settings{Server: "https://remind.example.com", Token: "abc"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	s, err := loadSettings(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Server != "https://remind.example.com" || s.Token != "abc" {
		t.Errorf("loaded = %+v", s)
	}

	t.Setenv("REMINDCTL_TOKEN", "from-env")
	s, err = loadSettings(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Token != "from-env" {
		t.Errorf("token = %q, want env override", s.Token)
	}
}
