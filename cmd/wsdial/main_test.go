package main

import (
	"path/filepath"
	"testing"
)

func TestFlags(t *testing.T) {
	if len(flags()) == 0 {
		t.Errorf("flags() should never be nil or empty")
	}
}

func TestConfigFile(t *testing.T) {
	d := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", d)

	got := configFile()
	want := filepath.Join(d, configDirName, configFileName)
	if got.SourceURI() != want {
		t.Errorf("configFile() = %q, want %q", got.SourceURI(), want)
	}
}

func TestInitLog(t *testing.T) {
	if l := initLog(false); l.GetLevel().String() == "" {
		t.Error("initLog() returned a zero-value logger")
	}
	if l := initLog(true); l.GetLevel().String() == "" {
		t.Error("initLog() returned a zero-value logger")
	}
}
