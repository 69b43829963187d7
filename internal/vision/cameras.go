package vision

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadCameras reads a camera registry JSON file: a list of CameraInfo
// entries. IDs must be unique and non-empty.
func LoadCameras(path string) ([]CameraInfo, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("camera file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read camera file: %w", err)
	}

	var cameras []CameraInfo
	if err := json.Unmarshal(data, &cameras); err != nil {
		return nil, fmt.Errorf("failed to parse camera JSON: %w", err)
	}

	seen := make(map[string]bool, len(cameras))
	for i, cam := range cameras {
		if cam.ID == "" {
			return nil, fmt.Errorf("camera %d has an empty id", i)
		}
		if seen[cam.ID] {
			return nil, fmt.Errorf("duplicate camera id %q", cam.ID)
		}
		seen[cam.ID] = true
	}
	return cameras, nil
}

// EnabledCameraIDs filters a registry down to the IDs the pipeline should
// synchronize.
func EnabledCameraIDs(cameras []CameraInfo) []string {
	ids := make([]string, 0, len(cameras))
	for _, cam := range cameras {
		if cam.Enabled {
			ids = append(ids, cam.ID)
		}
	}
	return ids
}
