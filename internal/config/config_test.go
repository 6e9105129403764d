package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Create temporary config file
	content := `
server:
  port: 9090
  host: "127.0.0.1"

database:
  host: "testdb"
  port: 5432
  user: "testuser"
  password: "testpass"
  dbname: "testdb"

practice:
  sampleRate: 22050
  seekTimeout: "2s"
`

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	// Load config
	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify loaded values
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1, got %s", cfg.Server.Host)
	}

	if cfg.Database.Host != "testdb" {
		t.Errorf("Expected database host testdb, got %s", cfg.Database.Host)
	}

	if cfg.Practice.SampleRate != 22050 {
		t.Errorf("Expected sample rate 22050, got %d", cfg.Practice.SampleRate)
	}

	if cfg.Practice.SeekTimeout != 2*time.Second {
		t.Errorf("Expected seek timeout 2s, got %v", cfg.Practice.SeekTimeout)
	}
}

func TestLoadDefaults(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte("server:\n  port: 8081\n")); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Practice.FFmpegPath != "ffmpeg" {
		t.Errorf("Expected default ffmpeg path, got %s", cfg.Practice.FFmpegPath)
	}
	if cfg.Practice.CountdownTicks != 3 {
		t.Errorf("Expected default countdown ticks 3, got %d", cfg.Practice.CountdownTicks)
	}
	if cfg.Practice.SubtitleTTL != 45*time.Minute {
		t.Errorf("Expected default subtitle TTL 45m, got %v", cfg.Practice.SubtitleTTL)
	}
	if cfg.Storage.BucketName != "clips" {
		t.Errorf("Expected default bucket clips, got %s", cfg.Storage.BucketName)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent file")
	}
}
