package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Errorf("version output = %q, want %q", got, version)
	}
}

func TestServeRejectsBrokenConfig(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"serve", "--config", "/does/not/exist.yaml"})
	if err := root.Execute(); err == nil {
		t.Fatal("serve with a missing config file must fail")
	}
}
