package main

import "testing"

func TestRootCmd_ServeFlags(t *testing.T) {
	root := newRootCmd()
	if err := root.ParseFlags([]string{"--dev", "--addr", ":9999"}); err != nil {
		t.Fatalf("root should accept serve flags: %v", err)
	}
	if addr, _ := root.Flags().GetString("addr"); addr != ":9999" {
		t.Errorf("expected addr :9999, got %q", addr)
	}
	if dev, _ := root.Flags().GetBool("dev"); !dev {
		t.Error("expected dev mode")
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	serve, _, err := root.Find([]string{"serve"})
	if err != nil || serve.Name() != "serve" {
		t.Fatalf("serve subcommand not found: %v", err)
	}
	if err := serve.ParseFlags([]string{"--dev", "--addr", ":8081", "--env-file", "test.env"}); err != nil {
		t.Fatalf("serve should accept its flags: %v", err)
	}
	if addr, _ := serve.Flags().GetString("addr"); addr != ":8081" {
		t.Errorf("expected addr :8081, got %q", addr)
	}

	stats, _, err := root.Find([]string{"stats"})
	if err != nil || stats.Name() != "stats" {
		t.Fatalf("stats subcommand not found: %v", err)
	}
	if stats.Flags().Lookup("dev") != nil {
		t.Error("stats should not take serve flags")
	}
}
