package depmgr

import (
	"encoding/xml"
	"os"

	"github.com/foundryhq/foundry/internal/buildutil"
)

// pomXML and ivyXML are the minimal shapes the façade reads from an
// on-disk descriptor file and writes back out via MakePom.

type pomXML struct {
	XMLName      xml.Name        `xml:"project"`
	GroupID      string          `xml:"groupId"`
	ArtifactID   string          `xml:"artifactId"`
	Version      string          `xml:"version"`
	Dependencies []pomDependency `xml:"dependencies>dependency"`
}

type pomDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope,omitempty"`
}

type ivyXML struct {
	XMLName xml.Name    `xml:"ivy-module"`
	Info    ivyInfo     `xml:"info"`
	Deps    []ivyDepend `xml:"dependencies>dependency"`
}

type ivyInfo struct {
	Organisation string `xml:"organisation,attr"`
	Module       string `xml:"module,attr"`
	Revision     string `xml:"revision,attr,omitempty"`
}

type ivyDepend struct {
	Org  string `xml:"org,attr"`
	Name string `xml:"name,attr"`
	Rev  string `xml:"rev,attr"`
	Conf string `xml:"conf,attr,omitempty"`
}

// parseDescriptorFile reads the dependency list out of a pom.xml or
// ivy.xml file on disk.
func parseDescriptorFile(path string, variant ManagerVariant) ([]ModuleID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, buildutil.Wrap(buildutil.KindResolution, err, "read descriptor %s", path)
	}

	if variant == ManagerMaven {
		var doc pomXML
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, buildutil.Wrap(buildutil.KindResolution, err, "parse pom %s", path)
		}
		out := make([]ModuleID, 0, len(doc.Dependencies))
		for _, d := range doc.Dependencies {
			out = append(out, ModuleID{Organization: d.GroupID, Name: d.ArtifactID, Revision: d.Version, ConfMapping: d.Scope, IsTransitive: true})
		}
		return out, nil
	}

	var doc ivyXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, buildutil.Wrap(buildutil.KindResolution, err, "parse ivy file %s", path)
	}
	out := make([]ModuleID, 0, len(doc.Deps))
	for _, d := range doc.Deps {
		out = append(out, ModuleID{Organization: d.Org, Name: d.Name, Revision: d.Rev, ConfMapping: d.Conf, IsTransitive: true})
	}
	return out, nil
}

// MakePom renders ivyConfig's module descriptor as a Maven pom.xml at
// outFile, the façade's second exposed operation.
func MakePom(ivyConfig IvyConfiguration, outFile string) error {
	return withLock(func() error {
		desc, err := resolveDescriptor(ivyConfig.ManagerVariant, ivyConfig.ProjectRoot)
		if err != nil {
			return err
		}

		doc := pomXML{
			GroupID:    desc.self.Organization,
			ArtifactID: desc.self.Name,
			Version:    desc.self.Revision,
		}
		for _, d := range desc.dependencies {
			doc.Dependencies = append(doc.Dependencies, pomDependency{
				GroupID:    d.Organization,
				ArtifactID: d.Name,
				Version:    d.Revision,
				Scope:      d.ConfMapping,
			})
		}

		out, err := xml.MarshalIndent(doc, "", "  ")
		if err != nil {
			return buildutil.Wrap(buildutil.KindResolution, err, "render pom")
		}
		out = append([]byte(xml.Header), out...)
		if err := os.WriteFile(outFile, out, 0o644); err != nil {
			return buildutil.Wrap(buildutil.KindIO, err, "write pom %s", outFile)
		}
		return nil
	})
}
