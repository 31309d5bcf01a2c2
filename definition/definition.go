// Package definition loads and validates one catalog entry into a
// PackageDefinition (spec.md §3, §4.2 "Package Definition Loader").
package definition

import (
	"fmt"
	"regexp"
)

// BuildSystem identifies the per-package build driver.
type BuildSystem string

const (
	BuildAutotools BuildSystem = "autotools"
	BuildCMake     BuildSystem = "cmake"
	BuildMake      BuildSystem = "make"
	BuildCustom    BuildSystem = "custom"
)

// SourceType identifies how SourceURL is fetched.
type SourceType string

const (
	SourceTarball SourceType = "tarball"
	SourceGit     SourceType = "git"
)

// PackageDefinition is the read-only record the Loader produces from one
// catalog entry, per spec.md §3.
type PackageDefinition struct {
	Name        string
	Version     string
	Description string
	Maintainer  string
	Homepage    string
	License     string
	Category    string

	SourceURL  string
	SourceType SourceType
	Checksum   string

	BuildSystem    BuildSystem
	BuildCmd       string
	InstallCmd     string
	ConfigureArgs  string
	PreBuildCmd    string
	PostInstallCmd string

	Dependencies      []string
	BuildDependencies []string
	Conflicts         []string
	Provides          []string

	SizeEstimate      int64
	BuildTimeEstimate int64
}

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9._+-]+$`)

// versionControlRe matches a control character anywhere in version, which
// spec.md §9's security note rejects at load time: version flows unquoted
// into build_dir names.
var versionControlRe = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// Validate checks the invariants of spec.md §3: name and version are
// non-empty, name matches the identifier pattern, source_url is non-empty,
// and every declared array contains only non-empty elements.
func (p *PackageDefinition) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !nameRe.MatchString(p.Name) {
		return fmt.Errorf("name %q does not match [a-zA-Z0-9._+-]+", p.Name)
	}
	if p.Version == "" {
		return fmt.Errorf("version is required")
	}
	if versionControlRe.MatchString(p.Version) {
		return fmt.Errorf("version %q contains a control character", p.Version)
	}
	if p.SourceURL == "" {
		return fmt.Errorf("source_url is required")
	}
	for _, list := range [][]string{p.Dependencies, p.BuildDependencies, p.Conflicts, p.Provides} {
		for _, elem := range list {
			if elem == "" {
				return fmt.Errorf("array fields must not contain empty elements")
			}
		}
	}
	return nil
}
