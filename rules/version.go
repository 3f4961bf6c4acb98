package rules

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version bump kinds for NextVersion.
const (
	BumpMajor = "major"
	BumpMinor = "minor"
	BumpPatch = "patch"
)

// InitialVersion is assigned to a rule created without a version.
const InitialVersion = "1.0.0"

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// ValidVersion reports whether v is a semantic version, with or without a
// leading "v".
func ValidVersion(v string) bool {
	return strings.TrimSpace(v) != "" && semver.IsValid(canonical(v))
}

// CompareVersions returns -1, 0 or +1 comparing a and b semantically.
func CompareVersions(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// NextVersion returns v with the given component incremented, dropping any
// pre-release or build suffix.
func NextVersion(v, bump string) (string, error) {
	if !ValidVersion(v) {
		return "", fmt.Errorf("invalid version %q", v)
	}
	core := strings.TrimPrefix(semver.Canonical(canonical(v)), "v")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	parts := strings.Split(core, ".")
	nums := make([]int, 3)
	for i := range nums {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return "", fmt.Errorf("invalid version %q: %w", v, err)
		}
		nums[i] = n
	}

	switch bump {
	case BumpMajor:
		nums = []int{nums[0] + 1, 0, 0}
	case BumpMinor, "":
		nums = []int{nums[0], nums[1] + 1, 0}
	case BumpPatch:
		nums[2]++
	default:
		return "", fmt.Errorf("unknown version bump %q (must be major, minor or patch)", bump)
	}
	return fmt.Sprintf("%d.%d.%d", nums[0], nums[1], nums[2]), nil
}
