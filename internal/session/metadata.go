package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Artifact is a downloadable file referenced from version metadata.
type Artifact struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url"`
	SHA1 string `json:"sha1"`
	Size int64  `json:"size,omitempty"`
}

// AssetIndexRef points at the asset index document of a version.
type AssetIndexRef struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	SHA1 string `json:"sha1"`
}

// VersionJSON is the per-version metadata document. Only the fields the
// download engine needs are decoded.
type VersionJSON struct {
	ID         string        `json:"id"`
	Kind       Kind          `json:"type"`
	MainClass  string        `json:"mainClass"`
	AssetIndex AssetIndexRef `json:"assetIndex"`
	Downloads  struct {
		Client         Artifact  `json:"client"`
		ClientMappings *Artifact `json:"client_mappings,omitempty"`
	} `json:"downloads"`
	Libraries []Library `json:"libraries"`
}

// Library is one entry of the libraries list.
type Library struct {
	Name      string `json:"name"`
	Downloads struct {
		Artifact *Artifact `json:"artifact,omitempty"`
	} `json:"downloads"`
	Rules []Rule `json:"rules,omitempty"`
}

// Rule allows or disallows a library, optionally only on one OS.
type Rule struct {
	Action string `json:"action"`
	OS     *struct {
		Name string `json:"name"`
	} `json:"os,omitempty"`
}

// AssetObject is one entry of an asset index.
type AssetObject struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// AssetIndex maps logical asset names to content-addressed objects.
type AssetIndex struct {
	Objects map[string]AssetObject `json:"objects"`
}

// ReadVersionJSON decodes the version metadata at path.
func ReadVersionJSON(path string) (*VersionJSON, error) {
	var v VersionJSON
	if err := readJSON(path, &v); err != nil {
		return nil, fmt.Errorf("version metadata: %w", err)
	}
	if v.Downloads.Client.URL == "" {
		return nil, fmt.Errorf("version metadata %s: no client download", path)
	}
	if v.AssetIndex.ID == "" || v.AssetIndex.URL == "" {
		return nil, fmt.Errorf("version metadata %s: no asset index", path)
	}
	if !filepath.IsLocal(v.AssetIndex.ID) || strings.ContainsAny(v.AssetIndex.ID, `/\`) {
		return nil, fmt.Errorf("version metadata %s: unsafe asset index id %q", path, v.AssetIndex.ID)
	}
	return &v, nil
}

// ReadAssetIndex decodes the asset index at path.
func ReadAssetIndex(path string) (*AssetIndex, error) {
	var idx AssetIndex
	if err := readJSON(path, &idx); err != nil {
		return nil, fmt.Errorf("asset index: %w", err)
	}
	return &idx, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// osName returns the launcher's name for goos.
func osName(goos string) string {
	if goos == "darwin" {
		return "osx"
	}
	return goos
}

// CurrentOS is the launcher OS name of the running platform.
func CurrentOS() string {
	return osName(runtime.GOOS)
}

// Allowed reports whether the library applies to platform. With no rules a
// library is allowed; otherwise the last matching rule decides.
// Native classifiers for another OS are never allowed.
func (l Library) Allowed(platform string) bool {
	if i := strings.Index(l.Name, ":natives-"); i >= 0 {
		native := l.Name[i+len(":natives-"):]
		if j := strings.IndexAny(native, "-:"); j >= 0 {
			native = native[:j]
		}
		if native == "macos" {
			native = "osx"
		}
		if native != platform {
			return false
		}
	}
	if len(l.Rules) == 0 {
		return true
	}
	allowed := false
	for _, r := range l.Rules {
		if r.OS != nil && r.OS.Name != platform {
			continue
		}
		allowed = r.Action == "allow"
	}
	return allowed
}
