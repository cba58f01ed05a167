package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "edgecache.yaml")
	yaml := "origin:\n  url: https://origin.example.com\ncache:\n  backend: tinylfu\n  max_entries: 500\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := checkConfig(&out, path); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"config ok", "https://origin.example.com", "tinylfu, 500 entries", "admin:     disabled"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestCheckConfigInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "edgecache.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  backend: arc\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := checkConfig(&out, path)
	if err == nil || !strings.Contains(err.Error(), "origin.url") {
		t.Errorf("err = %v, want origin.url validation error", err)
	}
	if out.Len() != 0 {
		t.Errorf("printed %q for an invalid config", out.String())
	}
}
