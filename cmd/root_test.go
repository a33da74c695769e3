package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestRunClosesLog(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "logs")
	cfgPath := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf("log_file = %q\nhistory = false\n", filepath.Join(logDir, "linkchain.log"))
	if err := os.WriteFile(cfgPath, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		flagConfig = ""
	})

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"command succeeds", []string{"version", "--config", cfgPath}, false},
		{"command fails", []string{"resolve", "ftp://site.example/watch/1", "--config", cfgPath}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetArgs(tt.args)
			rootCmd.SetOut(io.Discard)
			rootCmd.SetErr(io.Discard)

			if err := run(); (err != nil) != tt.wantErr {
				t.Fatalf("run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if _, err := os.Stat(logDir); err != nil {
				t.Fatalf("log file was never configured: %v", err)
			}
			if logCloser != nil {
				t.Error("log file left open after run")
			}
		})
	}
}
