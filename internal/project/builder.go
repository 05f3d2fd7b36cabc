package project

import (
	"path/filepath"

	"github.com/foundryhq/foundry/internal/depmgr"
	"github.com/foundryhq/foundry/internal/task"
)

// Builder replaces the original's reflective member-value scan (spec.md
// §4.9) with explicit registration: a project-definition module populates
// a Builder in its constructor instead of declaring conventionally-typed
// fields for Foundry to discover by reflection (spec.md §9 Design Notes,
// resolved in DESIGN.md's Open Question #1).
type Builder struct {
	p *Project
}

// NewBuilder starts building a project rooted at info.Directory, with an
// optional parent property store for inheritance (spec.md §4.9).
func NewBuilder(info Info) (*Builder, error) {
	var parentProps *PropertyStore
	if info.Parent != nil {
		parentProps = info.Parent.props
	}
	props, err := LoadPropertyStore(filepath.Join(info.Directory, "project", PropertiesFileName), parentProps)
	if err != nil {
		return nil, err
	}
	return &Builder{p: &Project{
		info:        info,
		props:       props,
		tasks:       make(map[string]*task.Task),
		subProjects: make(map[string]*Project),
	}}, nil
}

// Task registers a task under name, kebab-casing it first so a builder
// written with a Go-identifier-shaped name ("testCompile") lands as the
// spec's "test-compile" (spec.md §4.9's camelCase-to-hyphen-case rule,
// now an explicit call instead of an inferred one).
func (b *Builder) Task(name string, t *task.Task) *Builder {
	b.p.tasks[Kebab(name)] = t
	return b
}

// SubProject registers a sub-project under name.
func (b *Builder) SubProject(name string, sub *Project) *Builder {
	b.p.subProjects[name] = sub
	return b
}

// Dependency registers an external library dependency.
func (b *Builder) Dependency(mod depmgr.ModuleID) *Builder {
	b.p.dependencies = append(b.p.dependencies, mod)
	return b
}

// Resolver registers a resolver in declaration order.
func (b *Builder) Resolver(r depmgr.Resolver) *Builder {
	b.p.resolvers = append(b.p.resolvers, r)
	return b
}

// Configuration registers a configuration.
func (b *Builder) Configuration(c depmgr.Configuration) *Builder {
	b.p.configs = append(b.p.configs, c)
	return b
}

// OutputDirectory records one of this project's compile output
// directories, consulted by Act's collision check (spec.md §4.9).
func (b *Builder) OutputDirectory(dir string) *Builder {
	b.p.outputDirs = append(b.p.outputDirs, dir)
	return b
}

// AllowDirectoryClash opts this project out of the output-directory
// collision check (spec.md §4.9's "override available via a project
// flag").
func (b *Builder) AllowDirectoryClash() *Builder {
	b.p.allowDirClash = true
	return b
}

// Build finalizes the project: required properties are validated and its
// name is cached.
func (b *Builder) Build() (*Project, error) {
	name, err := b.p.props.RequireProjectName()
	if err != nil {
		return nil, err
	}
	b.p.name = name
	if _, ok := b.p.props.Get(KeyVersion); !ok && b.p.info.Parent != nil {
		if v, ok := b.p.info.Parent.props.Get(KeyVersion); ok {
			_ = b.p.props.Set(KeyVersion, v)
		}
	}
	return b.p, nil
}
