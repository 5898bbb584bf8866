package sources

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "music.yml", `
id: PLabc123
kind: youtube_playlist
name: Music Playlist
strategy: primary_only
check_interval: 900
`)

	cache := NewConfigCache(dir)
	config, err := cache.LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.ID != "PLabc123" {
		t.Errorf("Expected id PLabc123, got %s", config.ID)
	}
	if config.Kind != KindYouTubePlaylist {
		t.Errorf("Expected kind youtube_playlist, got %s", config.Kind)
	}
	if config.Name != "Music Playlist" {
		t.Errorf("Expected explicit name, got %s", config.Name)
	}
	if config.Strategy != "primary_only" {
		t.Errorf("Expected strategy primary_only, got %s", config.Strategy)
	}
	if config.CheckInterval != 900 {
		t.Errorf("Expected check interval 900, got %d", config.CheckInterval)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "liked-posts.yml", `
id: myaccount
kind: instagram_likes
`)

	cache := NewConfigCache(dir)
	config, err := cache.LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Name != "liked-posts" {
		t.Errorf("Expected name derived from filename, got %s", config.Name)
	}
	if config.Strategy != "full" {
		t.Errorf("Expected default strategy full, got %s", config.Strategy)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing id", "kind: youtube_playlist\n"},
		{"unknown kind", "id: PL1\nkind: vimeo_channel\n"},
		{"unknown strategy", "id: PL1\nkind: youtube_playlist\nstrategy: both\n"},
		{"negative interval", "id: PL1\nkind: youtube_playlist\ncheck_interval: -60\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeConfigFile(t, dir, "bad.yml", tt.content)

			cache := NewConfigCache(dir)
			if _, err := cache.LoadConfig(path); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestRunLoadsDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "one.yml", "id: PL1\nkind: youtube_playlist\n")
	writeConfigFile(t, dir, "two.yml", "id: acct\nkind: instagram_likes\n")
	writeConfigFile(t, dir, "notes.txt", "not a config")

	cache := NewConfigCache(dir)
	if err := cache.Run(); err != nil {
		t.Fatalf("Failed to load configs: %v", err)
	}

	if cache.GetConfigCount() != 2 {
		t.Errorf("Expected 2 configs, got %d", cache.GetConfigCount())
	}
	if _, err := cache.GetConfig("PL1"); err != nil {
		t.Errorf("Expected PL1 loaded: %v", err)
	}
	if _, err := cache.GetConfig("missing"); err == nil {
		t.Error("Expected error for unknown source id")
	}
}

func TestRunMissingDirectory(t *testing.T) {
	cache := NewConfigCache(filepath.Join(t.TempDir(), "does-not-exist"))
	if err := cache.Run(); err != nil {
		t.Errorf("Expected missing directory tolerated, got %v", err)
	}
}
