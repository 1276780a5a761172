package objects

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionLatest selects the highest approved version of a module.
const VersionLatest = "latest"

// ModuleInfo names one installable module: a namespace owned by a
// publisher, a module name inside that namespace, and a version selector
// (either VersionLatest or an exact dotted-triple version).
type ModuleInfo struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Version   string `json:"version"`
}

// NewModuleInfo builds a ModuleInfo selecting an exact version.
func NewModuleInfo(namespace, name, version string) ModuleInfo {
	return ModuleInfo{Namespace: namespace, Name: name, Version: version}
}

// LatestModuleInfo builds a ModuleInfo selecting the latest version.
func LatestModuleInfo(namespace, name string) ModuleInfo {
	return ModuleInfo{Namespace: namespace, Name: name, Version: VersionLatest}
}

// ID returns the version-independent module identifier "namespace:name".
func (m ModuleInfo) ID() string {
	return m.Namespace + ":" + m.Name
}

// String renders the full module reference "namespace:name@version".
func (m ModuleInfo) String() string {
	return m.ID() + "@" + m.Version
}

// IsLatest reports whether the selector asks for the latest version.
func (m ModuleInfo) IsLatest() bool {
	return m.Version == VersionLatest
}

// Validate checks namespace, name, and version selector shape.
func (m ModuleInfo) Validate() error {
	if err := validateIdentPart("namespace", m.Namespace); err != nil {
		return err
	}
	if err := validateIdentPart("module name", m.Name); err != nil {
		return err
	}
	if m.Version == "" {
		return fmt.Errorf("module version selector is required")
	}
	if m.IsLatest() {
		return nil
	}
	if _, err := ParseVersion(m.Version); err != nil {
		return err
	}
	return nil
}

func validateIdentPart(label, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", label)
	}
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return fmt.Errorf("%s %q contains invalid character %q", label, value, r)
		}
	}
	return nil
}

// Version is a parsed dotted-triple module version.
type Version struct {
	Major, Minor, Patch uint64
}

// ParseVersion parses "major.minor.patch".
func ParseVersion(value string) (Version, error) {
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("version %q must be major.minor.patch", value)
	}
	nums := make([]uint64, 3)
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("version %q has invalid component %q", value, part)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Compare returns -1, 0, or 1 ordering v against other.
func (v Version) Compare(other Version) int {
	pairs := [3][2]uint64{
		{v.Major, other.Major},
		{v.Minor, other.Minor},
		{v.Patch, other.Patch},
	}
	for _, pair := range pairs {
		if pair[0] < pair[1] {
			return -1
		}
		if pair[0] > pair[1] {
			return 1
		}
	}
	return 0
}

// String renders the version back to its dotted form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Dependency declares that a module requires another module to be
// installed on the same account before it can be instantiated.
// Constraints are checked once at install time.
type Dependency struct {
	// ModuleID is the required module in "namespace:name" form.
	ModuleID string `json:"module_id"`
	// MinVersion is the lowest satisfying version, inclusive. Empty
	// means any installed version satisfies the dependency.
	MinVersion string `json:"min_version,omitempty"`
}

// SatisfiedBy reports whether an installed version meets the constraint.
func (d Dependency) SatisfiedBy(installed string) (bool, error) {
	if d.MinVersion == "" {
		return true, nil
	}
	min, err := ParseVersion(d.MinVersion)
	if err != nil {
		return false, fmt.Errorf("dependency %s: %w", d.ModuleID, err)
	}
	have, err := ParseVersion(installed)
	if err != nil {
		return false, fmt.Errorf("installed version of %s: %w", d.ModuleID, err)
	}
	return have.Compare(min) >= 0, nil
}
