package core

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// DefaultBuildDirName is the dot-directory under the project root that
// receives build entrypoint output.
const DefaultBuildDirName = ".build"

// GetBuildRoot returns the build output root for a project directory.
func GetBuildRoot(projectDir string) string {
	if projectDir == "" {
		return DefaultBuildDirName
	}
	return filepath.Join(projectDir, DefaultBuildDirName)
}

// -----------------------------------------------------------------------------
// Component Type
// -----------------------------------------------------------------------------

// ComponentType enumerates the four package kinds an agent is assembled from.
type ComponentType string

const (
	ComponentProtocol   ComponentType = "protocol"
	ComponentConnection ComponentType = "connection"
	ComponentSkill      ComponentType = "skill"
	ComponentContract   ComponentType = "contract"
)

// ComponentTypes lists all component types in the order the builder loads
// them: protocols carry no intra-type dependencies, skills load last.
func ComponentTypes() []ComponentType {
	return []ComponentType{
		ComponentProtocol,
		ComponentContract,
		ComponentConnection,
		ComponentSkill,
	}
}

func (t ComponentType) String() string {
	return string(t)
}

// Plural returns the registry directory name for the type.
func (t ComponentType) Plural() string {
	return string(t) + "s"
}

// Valid reports whether t is one of the four known component types.
func (t ComponentType) Valid() bool {
	switch t {
	case ComponentProtocol, ComponentConnection, ComponentSkill, ComponentContract:
		return true
	}
	return false
}

// ParseComponentType converts a string into a ComponentType, accepting both
// singular and plural spellings.
func ParseComponentType(s string) (ComponentType, error) {
	switch s {
	case "protocol", "protocols":
		return ComponentProtocol, nil
	case "connection", "connections":
		return ComponentConnection, nil
	case "skill", "skills":
		return ComponentSkill, nil
	case "contract", "contracts":
		return ComponentContract, nil
	}
	return "", NewError(fmt.Errorf("unknown component type %q", s), CodeConfigurationInvalid, nil)
}

// -----------------------------------------------------------------------------
// Simple identifiers
// -----------------------------------------------------------------------------

var simpleIDPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateSimpleID checks an author or package name: lowercase letters,
// digits and underscores, not starting with a digit.
func ValidateSimpleID(field, value string) error {
	if !simpleIDPattern.MatchString(value) {
		return NewError(
			fmt.Errorf("%s %q is not a valid identifier", field, value),
			CodeConfigurationInvalid,
			map[string]any{field: value},
		)
	}
	return nil
}
