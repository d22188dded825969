package session

import (
	"encoding/json"
	"fmt"
)

// Kind is the release channel of a game version.
type Kind int

const (
	KindRelease Kind = iota
	KindSnapshot
	KindOldBeta
	KindOldAlpha
)

var kindNames = map[Kind]string{
	KindRelease:  "release",
	KindSnapshot: "snapshot",
	KindOldBeta:  "old_beta",
	KindOldAlpha: "old_alpha",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a manifest type string to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown version type %q", s)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown version kind %d", int(k))
	}
	return json.Marshal(s)
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("version type: %w", err)
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Version is one entry of the version manifest.
type Version struct {
	ID   string `json:"id"`
	Kind Kind   `json:"type"`
	URL  string `json:"url"`
	SHA1 string `json:"sha1,omitempty"`
}

// Allow selects which non-release kinds a listing keeps. Releases are
// always kept.
type Allow struct {
	Snapshot bool
	Beta     bool
	Alpha    bool
}

func (a Allow) permits(k Kind) bool {
	switch k {
	case KindRelease:
		return true
	case KindSnapshot:
		return a.Snapshot
	case KindOldBeta:
		return a.Beta
	case KindOldAlpha:
		return a.Alpha
	default:
		return false
	}
}
