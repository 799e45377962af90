package core

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// PublicId identifies a versioned package: author/name:version, with an
// optional content hash. The zero Hash means "no fingerprint recorded".
// PublicId is comparable and safe to use as a map key.
type PublicId struct {
	Author  string
	Name    string
	Version string
	Hash    string
}

var publicIDPattern = regexp.MustCompile(
	`^([a-z_][a-z0-9_]*)/([a-z_][a-z0-9_]*):((?:0|[1-9]\d*)\.(?:0|[1-9]\d*)\.(?:0|[1-9]\d*)(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?)(?::([0-9a-f]{8,64}))?$`,
)

// NewPublicId validates its parts and returns a PublicId without hash.
func NewPublicId(author, name, version string) (PublicId, error) {
	if err := ValidateSimpleID("author", author); err != nil {
		return PublicId{}, err
	}
	if err := ValidateSimpleID("name", name); err != nil {
		return PublicId{}, err
	}
	if _, err := semver.StrictNewVersion(version); err != nil {
		return PublicId{}, NewError(
			fmt.Errorf("version %q is not valid semver: %w", version, err),
			CodeConfigurationInvalid,
			map[string]any{"author": author, "name": name},
		)
	}
	return PublicId{Author: author, Name: name, Version: version}, nil
}

// MustNewPublicId is NewPublicId for tests and static defaults.
func MustNewPublicId(author, name, version string) PublicId {
	id, err := NewPublicId(author, name, version)
	if err != nil {
		panic(err)
	}
	return id
}

// ParsePublicId parses "author/name:version" or
// "author/name:version:hash".
func ParsePublicId(s string) (PublicId, error) {
	m := publicIDPattern.FindStringSubmatch(s)
	if m == nil {
		return PublicId{}, NewError(
			fmt.Errorf("public id %q is not well formatted, expected author/name:version", s),
			CodeConfigurationInvalid,
			nil,
		)
	}
	return PublicId{Author: m[1], Name: m[2], Version: m[3], Hash: m[4]}, nil
}

func (p PublicId) String() string {
	if p.Hash != "" {
		return fmt.Sprintf("%s/%s:%s:%s", p.Author, p.Name, p.Version, p.Hash)
	}
	return fmt.Sprintf("%s/%s:%s", p.Author, p.Name, p.Version)
}

// WithoutHash drops the content hash; used for dependency matching, where
// only author, name and version participate.
func (p PublicId) WithoutHash() PublicId {
	p.Hash = ""
	return p
}

// SamePrefix reports whether two ids name the same package, version aside.
func (p PublicId) SamePrefix(other PublicId) bool {
	return p.Author == other.Author && p.Name == other.Name
}

// SemVer parses the version part. The id must have been validated on
// construction, so failures here indicate a hand-built value.
func (p PublicId) SemVer() (*semver.Version, error) {
	return semver.StrictNewVersion(p.Version)
}

// Compare orders two ids of the same prefix by version. Ids with different
// prefixes order lexicographically by author then name so sorting is total.
func (p PublicId) Compare(other PublicId) int {
	if p.Author != other.Author {
		if p.Author < other.Author {
			return -1
		}
		return 1
	}
	if p.Name != other.Name {
		if p.Name < other.Name {
			return -1
		}
		return 1
	}
	pv, perr := p.SemVer()
	ov, oerr := other.SemVer()
	if perr != nil || oerr != nil {
		if p.Version < other.Version {
			return -1
		} else if p.Version > other.Version {
			return 1
		}
		return 0
	}
	return pv.Compare(ov)
}

// -----------------------------------------------------------------------------
// Component Id and Prefix
// -----------------------------------------------------------------------------

// ComponentId is the primary key of the dependency graph.
type ComponentId struct {
	Type   ComponentType
	Public PublicId
}

func NewComponentId(t ComponentType, id PublicId) ComponentId {
	return ComponentId{Type: t, Public: id}
}

func (c ComponentId) String() string {
	return fmt.Sprintf("(%s, %s)", c.Type, c.Public)
}

// Prefix groups all versions of the same package.
func (c ComponentId) Prefix() Prefix {
	return Prefix{Type: c.Type, Author: c.Public.Author, Name: c.Public.Name}
}

// WithoutHash strips the content hash from the public id part.
func (c ComponentId) WithoutHash() ComponentId {
	c.Public = c.Public.WithoutHash()
	return c
}

// Prefix is (type, author, name), ignoring version.
type Prefix struct {
	Type   ComponentType
	Author string
	Name   string
}

func (p Prefix) String() string {
	return fmt.Sprintf("(%s, %s/%s)", p.Type, p.Author, p.Name)
}
