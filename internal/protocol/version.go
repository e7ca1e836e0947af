package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// ProtocolVersion is the version of the host/extension contract.
	// Format: MAJOR.MINOR.PATCH.
	// - Increment MAJOR when a method is removed or its arguments change.
	// - Increment MINOR when a method is added.
	// - Increment PATCH for fixes that do not change the contract.
	ProtocolVersion = "1.2.0"

	// MinCompatibleVersion is the oldest peer version this build accepts.
	MinCompatibleVersion = "1.0.0"
)

// Version is a parsed protocol version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Parse parses a version string in "MAJOR.MINOR.PATCH" format.
func Parse(version string) (Version, error) {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version format: %s (expected MAJOR.MINOR.PATCH)", version)
	}

	var nums [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version component %q in %s", part, version)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// String returns the string form of the version.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

// IsCompatible checks a peer's protocol version against this build.
// Rules:
// - Major version must match exactly.
// - The peer must not be older than MinCompatibleVersion.
// - Higher minor and patch versions are accepted.
func IsCompatible(peer string) (bool, error) {
	pv, err := Parse(peer)
	if err != nil {
		return false, fmt.Errorf("parse peer version: %w", err)
	}
	current := CurrentVersion()
	if pv.Major != current.Major {
		return false, fmt.Errorf("incompatible major version: peer is %s, want %d.x.x", pv, current.Major)
	}
	minimum, err := Parse(MinCompatibleVersion)
	if err != nil {
		return false, fmt.Errorf("parse minimum compatible version: %w", err)
	}
	if pv.Less(minimum) {
		return false, fmt.Errorf("peer version %s is too old, minimum is %s", pv, MinCompatibleVersion)
	}
	return true, nil
}

// CurrentVersion returns ProtocolVersion parsed.
func CurrentVersion() Version {
	v, err := Parse(ProtocolVersion)
	if err != nil {
		panic(fmt.Sprintf("invalid ProtocolVersion constant: %v", err))
	}
	return v
}
