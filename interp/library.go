package interp

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/value"
)

// Package is a component library available to payloads. Script frontends
// load Source; Go programs read Exports.
type Package struct {
	Version *semver.Version
	Exports map[string]value.Value
	Name    string
	Source  string
}

// Library is a local registry of packages. It never fetches anything; a
// requirement it cannot satisfy fails initialization.
type Library struct {
	packages map[string][]*Package
	mu       sync.RWMutex
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{packages: make(map[string][]*Package)}
}

// Add registers source under name at version.
func (l *Library) Add(name, version, source string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err,
			fmt.Sprintf("package %s: invalid version %q", name, version))
	}
	l.AddPackage(&Package{Name: name, Version: v, Source: source})
	return nil
}

// AddPackage registers p, replacing a package with the same name and version.
func (l *Library) AddPackage(p *Package) {
	l.mu.Lock()
	defer l.mu.Unlock()

	versions := l.packages[p.Name]
	for i, existing := range versions {
		if existing.Version.Equal(p.Version) {
			versions[i] = p
			return
		}
	}
	versions = append(versions, p)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version.GreaterThan(versions[j].Version) })
	l.packages[p.Name] = versions
}

// Resolve returns the newest package satisfying req ("name" or
// "name@constraint").
func (l *Library) Resolve(req string) (*Package, error) {
	name, constraint := ParseRequirement(req)

	l.mu.RLock()
	versions := l.packages[name]
	l.mu.RUnlock()

	if len(versions) == 0 {
		return nil, errors.NotFound(errors.PhaseLoad, "package", name)
	}
	if constraint == "" {
		return versions[0], nil
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err,
			fmt.Sprintf("package %s: invalid constraint %q", name, constraint))
	}
	available := make([]string, 0, len(versions))
	for _, p := range versions {
		if c.Check(p.Version) {
			return p, nil
		}
		available = append(available, p.Version.String())
	}
	return nil, errors.VersionMismatch(name, constraint, available)
}

// ResolveAll resolves every requirement, keyed by package name.
func (l *Library) ResolveAll(reqs []string) (map[string]*Package, error) {
	out := make(map[string]*Package, len(reqs))
	for _, req := range reqs {
		p, err := l.Resolve(req)
		if err != nil {
			return nil, err
		}
		out[p.Name] = p
	}
	return out, nil
}

// Names returns the registered package names in order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.packages))
	for name := range l.packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
