package session

import (
	"path/filepath"
	"strings"
)

// Layout maps install artifacts to paths under a game root directory.
type Layout struct {
	Root string
}

func (l Layout) VersionDir(id string) string {
	return filepath.Join(l.Root, "versions", id)
}

func (l Layout) VersionJSON(id string) string {
	return filepath.Join(l.VersionDir(id), id+".json")
}

func (l Layout) ClientJar(id string) string {
	return filepath.Join(l.VersionDir(id), id+".jar")
}

func (l Layout) ClientMappings(id string) string {
	return filepath.Join(l.VersionDir(id), id+".txt")
}

func (l Layout) AssetIndex(id string) string {
	return filepath.Join(l.Root, "assets", "indexes", id+".json")
}

// AssetObject is the content-addressed location of an asset: the first two
// hex characters of the hash name the bucket directory.
func (l Layout) AssetObject(hash string) string {
	return filepath.Join(l.Root, "assets", "objects", hashPrefix(hash), hash)
}

// Library resolves a maven-style artifact path below libraries/.
func (l Layout) Library(artifactPath string) string {
	return filepath.Join(l.Root, "libraries", filepath.FromSlash(artifactPath))
}

// AssetURL is the download location of hash below base.
func AssetURL(base, hash string) string {
	return strings.TrimRight(base, "/") + "/" + hashPrefix(hash) + "/" + hash
}

func hashPrefix(hash string) string {
	if len(hash) < 2 {
		return hash
	}
	return hash[:2]
}
