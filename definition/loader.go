package definition

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"srcpkg/pklog"
)

// Locator resolves a package name to the filesystem path of its catalog
// entry. catalog.Store satisfies this; tests substitute a fixture locator,
// mirroring the teacher's PortsQuerier abstraction for swapping a real
// make-query backend for fixtures.
type Locator interface {
	Locate(name string) (string, error)
}

// Loader reads one catalog entry and returns a validated PackageDefinition.
type Loader struct {
	Locator Locator
	Logger  pklog.LibraryLogger
}

// NewLoader builds a Loader over the given Locator.
func NewLoader(locator Locator, logger pklog.LibraryLogger) *Loader {
	if logger == nil {
		logger = pklog.NoOpLogger{}
	}
	return &Loader{Locator: locator, Logger: logger}
}

// Load resolves name via the Locator, deserializes the record, validates
// it, and returns it. Locator errors (e.g. catalog.NotFoundError) propagate
// unchanged; malformed records return *ParseError.
func (l *Loader) Load(name string) (*PackageDefinition, error) {
	path, err := l.Locator.Locate(name)
	if err != nil {
		return nil, err
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, &ParseError{Name: name, Reason: fmt.Sprintf("invalid record format: %v", err)}
	}

	sec := iniFile.Section("package")

	def := &PackageDefinition{
		Name:           sec.Key("name").MustString(name),
		Version:        sec.Key("version").String(),
		Description:    sec.Key("description").String(),
		Maintainer:     sec.Key("maintainer").String(),
		Homepage:       sec.Key("homepage").String(),
		License:        sec.Key("license").String(),
		Category:       sec.Key("category").String(),
		SourceURL:      sec.Key("source_url").String(),
		SourceType:     SourceType(sec.Key("source_type").MustString(string(SourceTarball))),
		Checksum:       strings.ToLower(sec.Key("checksum").String()),
		BuildCmd:       sec.Key("build_cmd").String(),
		InstallCmd:     sec.Key("install_cmd").String(),
		ConfigureArgs:  sec.Key("configure_args").String(),
		PreBuildCmd:    sec.Key("pre_build_cmd").String(),
		PostInstallCmd: sec.Key("post_install_cmd").String(),
	}

	buildSystem := strings.ToLower(strings.TrimSpace(sec.Key("build_system").MustString(string(BuildAutotools))))
	switch BuildSystem(buildSystem) {
	case BuildAutotools, BuildCMake, BuildMake, BuildCustom:
		def.BuildSystem = BuildSystem(buildSystem)
	default:
		l.Logger.Warn("package %s declares unknown build_system %q, coercing to autotools", name, buildSystem)
		def.BuildSystem = BuildAutotools
	}

	def.Dependencies = splitList(sec.Key("dependencies").String())
	def.BuildDependencies = splitList(sec.Key("build_dependencies").String())
	def.Conflicts = splitList(sec.Key("conflicts").String())
	def.Provides = splitList(sec.Key("provides").String())

	if v := sec.Key("size_estimate").String(); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, &ParseError{Name: name, Reason: "size_estimate is not an integer"}
		}
		def.SizeEstimate = n
	}
	if v := sec.Key("build_time_estimate").String(); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, &ParseError{Name: name, Reason: "build_time_estimate is not an integer"}
		}
		def.BuildTimeEstimate = n
	}

	if err := def.Validate(); err != nil {
		return nil, &ParseError{Name: name, Reason: err.Error()}
	}

	return def, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
