package vision

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCameraFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCameras(t *testing.T) {
	path := writeCameraFile(t, "cameras.json", `[
		{"id": "cam-a", "name": "paddock north", "url": "rtsp://10.0.0.11/live", "enabled": true},
		{"id": "cam-b", "name": "paddock south", "enabled": true},
		{"id": "cam-c", "name": "spare", "enabled": false}
	]`)

	cameras, err := LoadCameras(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cameras) != 3 {
		t.Fatalf("loaded %d cameras, want 3", len(cameras))
	}
	if cameras[0].URL != "rtsp://10.0.0.11/live" {
		t.Errorf("cam-a URL = %q", cameras[0].URL)
	}

	ids := EnabledCameraIDs(cameras)
	if len(ids) != 2 || ids[0] != "cam-a" || ids[1] != "cam-b" {
		t.Errorf("EnabledCameraIDs = %v, want [cam-a cam-b]", ids)
	}
}

func TestLoadCamerasRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"wrong extension", "cameras.yaml", `[]`},
		{"invalid json", "cameras.json", `{not json`},
		{"empty id", "cameras.json", `[{"id": "", "enabled": true}]`},
		{"duplicate id", "cameras.json", `[{"id": "cam-a"}, {"id": "cam-a"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCameraFile(t, tt.file, tt.content)
			if _, err := LoadCameras(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoadCamerasMissingFile(t *testing.T) {
	if _, err := LoadCameras(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
