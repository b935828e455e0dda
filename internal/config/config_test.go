package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(NewViper(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Server.Addr != defaultServerAddr {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Storage.Adapter != "local" {
		t.Errorf("Storage.Adapter = %q", cfg.Storage.Adapter)
	}
	if cfg.Images.JPEGQuality != defaultJPEGQuality || cfg.Images.MaxWidth != defaultMaxWidth {
		t.Errorf("Images = %+v", cfg.Images)
	}
}

func TestLoad_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "epubweb.yaml")
	content := `image_base_url: https://cdn.example.com/img
link_base_url: /read
log:
  level: debug
storage:
  adapter: s3
  s3:
    bucket: books
    region: eu-west-1
    prefix: published
images:
  optimize: true
  max_width: 800
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(NewViper(), file)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ImageBaseURL != "https://cdn.example.com/img" || cfg.LinkBaseURL != "/read" {
		t.Errorf("base URLs = %q, %q", cfg.ImageBaseURL, cfg.LinkBaseURL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Storage.S3.Bucket != "books" || cfg.Storage.S3.Prefix != "published" {
		t.Errorf("Storage.S3 = %+v", cfg.Storage.S3)
	}
	if !cfg.Images.Optimize || cfg.Images.MaxWidth != 800 || cfg.Images.JPEGQuality != defaultJPEGQuality {
		t.Errorf("Images = %+v", cfg.Images)
	}
	if err := ValidateStorage(cfg.Storage); err != nil {
		t.Errorf("ValidateStorage() error = %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EPUBWEB_LINK_BASE_URL", "/env")
	t.Setenv("EPUBWEB_STORAGE_LOCAL_BASE_PATH", "/srv/books")

	cfg, err := Load(NewViper(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LinkBaseURL != "/env" {
		t.Errorf("LinkBaseURL = %q, want /env", cfg.LinkBaseURL)
	}
	if cfg.Storage.Local.BasePath != "/srv/books" {
		t.Errorf("Storage.Local.BasePath = %q", cfg.Storage.Local.BasePath)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "unable to read config file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Log:    LogConfig{Level: "info"},
			Images: ImageConfig{MaxWidth: 100, JPEGQuality: 80},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "yaml" }, "log.format"},
		{"negative width", func(c *Config) { c.Images.MaxWidth = -1 }, "images.max_width"},
		{"quality too low", func(c *Config) { c.Images.JPEGQuality = 0 }, "images.jpeg_quality"},
		{"quality too high", func(c *Config) { c.Images.JPEGQuality = 101 }, "images.jpeg_quality"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := Validate(&cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStorage(t *testing.T) {
	tests := []struct {
		name    string
		cfg     StorageConfig
		wantErr bool
	}{
		{"local", StorageConfig{Adapter: "local", Local: LocalStorage{BasePath: "/tmp/out"}}, false},
		{"local without path", StorageConfig{Adapter: "local"}, true},
		{"s3", StorageConfig{Adapter: "s3", S3: S3StorageOpts{Bucket: "b", Region: "r"}}, false},
		{"s3 without bucket", StorageConfig{Adapter: "s3", S3: S3StorageOpts{Region: "r"}}, true},
		{"s3 without region", StorageConfig{Adapter: "s3", S3: S3StorageOpts{Bucket: "b"}}, true},
		{"unknown", StorageConfig{Adapter: "gcs"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStorage(tt.cfg); (err != nil) != tt.wantErr {
				t.Errorf("ValidateStorage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
