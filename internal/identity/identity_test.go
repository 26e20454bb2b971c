package identity_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/micro-nova/amplipi-rfid/internal/identity"
)

func TestGetVersion_Fallback(t *testing.T) {
	dir := t.TempDir()
	got := identity.GetVersionFromDir(dir)
	if got != identity.DefaultVersion {
		t.Errorf("GetVersionFromDir(%q) = %q; want %q", dir, got, identity.DefaultVersion)
	}
}

func TestGetVersion_FromFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(`{"version": "1.2.3"}`), 0644); err != nil {
		t.Fatal(err)
	}

	if got := identity.GetVersionFromDir(dir); got != "1.2.3" {
		t.Errorf("GetVersionFromDir(%q) = %q; want %q", dir, got, "1.2.3")
	}
}

func TestGetVersion_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := identity.GetVersionFromDir(dir); got != identity.DefaultVersion {
		t.Errorf("GetVersionFromDir with invalid JSON = %q; want %q", got, identity.DefaultVersion)
	}
}

func TestGetHostname_NotEmpty(t *testing.T) {
	if identity.GetHostname() == "" {
		t.Error("GetHostname() returned empty string")
	}
}
