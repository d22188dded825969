package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"mcfetch/internal/downloader"
)

// ErrVersionNotFound is returned when a version id is not in the manifest.
var ErrVersionNotFound = errors.New("version not found")

// maxMetadataSize caps manifest and metadata documents read into memory.
const maxMetadataSize = 64 << 20

// Manifest is the top-level list of published versions.
type Manifest struct {
	Latest struct {
		Release  string `json:"release"`
		Snapshot string `json:"snapshot"`
	} `json:"latest"`
	Versions []Version `json:"versions"`
}

// FetchManifest downloads and decodes the manifest at rawURL through src.
func FetchManifest(ctx context.Context, src downloader.Source, rawURL string) (*Manifest, error) {
	body, err := src.Open(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer body.Close()

	var m Manifest
	if err := json.NewDecoder(io.LimitReader(body, maxMetadataSize)).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// Find returns the version with the given id.
func (m *Manifest) Find(id string) (Version, error) {
	for _, v := range m.Versions {
		if v.ID == id {
			return v, nil
		}
	}
	return Version{}, fmt.Errorf("%w: %s", ErrVersionNotFound, id)
}

// LatestOf returns the newest release or snapshot named by the manifest.
func (m *Manifest) LatestOf(kind Kind) (Version, error) {
	switch kind {
	case KindRelease:
		return m.Find(m.Latest.Release)
	case KindSnapshot:
		return m.Find(m.Latest.Snapshot)
	default:
		return Version{}, fmt.Errorf("no latest entry for %s", kind)
	}
}

// Resolve accepts a version id or one of the aliases "latest" and
// "latest-snapshot".
func (m *Manifest) Resolve(id string) (Version, error) {
	switch id {
	case "latest", "latest-release":
		return m.LatestOf(KindRelease)
	case "latest-snapshot":
		return m.LatestOf(KindSnapshot)
	default:
		return m.Find(id)
	}
}

// Filter returns the versions permitted by allow, in manifest order.
func (m *Manifest) Filter(allow Allow) []Version {
	out := make([]Version, 0, len(m.Versions))
	for _, v := range m.Versions {
		if allow.permits(v.Kind) {
			out = append(out, v)
		}
	}
	return out
}
