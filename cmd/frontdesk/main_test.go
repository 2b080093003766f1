package main

import (
	"context"
	"testing"

	"frontdesk/internal/config"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"serve": false, "migrate": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("expected %s command", name)
		}
	}
	if flag := root.PersistentFlags().Lookup("env-file"); flag == nil {
		t.Fatalf("expected env-file flag")
	}
}

func TestOpenPoolRequiresDSN(t *testing.T) {
	if _, err := openPool(context.Background(), config.Config{}); err == nil {
		t.Fatalf("expected error without DB_DSN")
	}
}
