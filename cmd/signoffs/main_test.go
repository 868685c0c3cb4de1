package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// run executes the root command with a config that keeps all state under a temp dir.
func run(t *testing.T, extraConfig string, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	doc := "data_dir: " + dir + "\nlog:\n  level: error\n" + extraConfig
	if err := os.WriteFile(cfgFile, []byte(doc), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("SIGNOFFS_CONFIG", cfgFile)
	t.Setenv("SIGNOFFS_DB_DSN", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDemo_BuildingPermit(t *testing.T) {
	out, err := run(t, "observability:\n  metrics:\n    enabled: true\n",
		"demo", "--process", "permit", "--revoke-last=false", "--metrics")
	if err != nil {
		t.Fatalf("demo: %v\n%s", err, out)
	}
	for _, want := range []string{
		"alice  cannot approve permit: permission_denied",
		"clerk  approved final_inspection",
		"state: approved",
		"final_inspection authorized from inspected",
		`signoffs_transitions_total{kind="approve",result="denied"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDemo_LeaveRevoke(t *testing.T) {
	out, err := run(t, "processes:\n  revoke_blocked_by_next_signoffs: true\n",
		"demo", "--process", "leave", "--revoke-last", "--metrics=false")
	if err != nil {
		t.Fatalf("demo: %v\n%s", err, out)
	}
	for _, want := range []string{
		"mary   cannot approve hr: not_next",
		"hank   revoked  hr",
		"granted: false",
		"hr revoked",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDemo_UnknownProcess(t *testing.T) {
	_, err := run(t, "", "demo", "--process", "expenses")
	if err == nil || !strings.Contains(err.Error(), "unknown process") {
		t.Fatalf("err = %v, want unknown process", err)
	}
}

func TestDemoRBAC_Valid(t *testing.T) {
	cfg := demoRBAC()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.UserRoles["clerk"] != "clerk" {
		t.Errorf("clerk role = %q", cfg.UserRoles["clerk"])
	}
}
