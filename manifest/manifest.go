/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package manifest

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chainguard.dev/relman/revision"
)

// DefaultRevision is assumed when a manifest document carries no default
// element.
const DefaultRevision = "master"

// BackupSuffix is appended to a document's file name when Write backs it
// up before rewriting in place.
const BackupSuffix = "~"

// Project is one project entry of a manifest document: a repository the
// document pins to a revision.
type Project struct {
	// Name is the full repository identifier, e.g. "armmbed/meta-mbl".
	Name string
	// Path is the checkout path relative to the workspace root.
	Path string
	// RemoteName keys into the document's remote table. Empty means the
	// document default remote.
	RemoteName string
	// Revision is the pinned revision. Empty means the document default.
	// Manifest documents store short names or hashes, never refs/ paths.
	Revision string
	// Upstream is the optional upstream branch hint. It is dropped
	// whenever the pinned revision changes, it would be stale otherwise.
	Upstream string
}

// Owner returns the owner portion of the project name, or "" when the
// name has no owner prefix.
func (p *Project) Owner() string {
	if i := strings.LastIndex(p.Name, "/"); i >= 0 {
		return p.Name[:i]
	}
	return ""
}

// ShortName returns the repository name without its owner prefix.
func (p *Project) ShortName() string {
	if i := strings.LastIndex(p.Name, "/"); i >= 0 {
		return p.Name[i+1:]
	}
	return p.Name
}

// Document is one parsed manifest file: an ordered set of project
// entries plus defaults and a remote table.
type Document struct {
	// Name is the file base name without extension, e.g. "default".
	Name string
	// Path is the absolute path the document was loaded from.
	Path string

	DefaultRevision string
	DefaultRemote   string

	// Remotes maps remote names to fetch URL prefixes.
	Remotes map[string]string

	// remoteOrder preserves the file order of remote elements, so an
	// untouched document serializes without gratuitous diffs.
	remoteOrder []string
	// defaultAttrs holds the default element as parsed, nil when the
	// source document had none.
	defaultAttrs *xmlDefault

	projects []*Project
	byName   map[string]*Project
	changed  bool
}

type xmlManifest struct {
	XMLName  xml.Name     `xml:"manifest"`
	Remotes  []xmlRemote  `xml:"remote"`
	Default  *xmlDefault  `xml:"default"`
	Projects []xmlProject `xml:"project"`
}

type xmlRemote struct {
	Name  string `xml:"name,attr"`
	Fetch string `xml:"fetch,attr"`
}

type xmlDefault struct {
	Revision string `xml:"revision,attr,omitempty"`
	Remote   string `xml:"remote,attr,omitempty"`
}

type xmlProject struct {
	Name     string `xml:"name,attr"`
	Path     string `xml:"path,attr,omitempty"`
	Remote   string `xml:"remote,attr,omitempty"`
	Revision string `xml:"revision,attr,omitempty"`
	Upstream string `xml:"upstream,attr,omitempty"`
}

// Parse decodes manifest XML. The name is the logical document name
// (file base name without extension).
func Parse(name string, data []byte) (*Document, error) {
	var raw xmlManifest
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", name, err)
	}

	doc := &Document{
		Name:            name,
		DefaultRevision: DefaultRevision,
		Remotes:         map[string]string{},
		byName:          map[string]*Project{},
	}
	if raw.Default != nil {
		attrs := *raw.Default
		doc.defaultAttrs = &attrs
		if raw.Default.Revision != "" {
			doc.DefaultRevision = raw.Default.Revision
		}
		doc.DefaultRemote = raw.Default.Remote
	}
	for _, r := range raw.Remotes {
		if _, ok := doc.Remotes[r.Name]; ok {
			return nil, fmt.Errorf("manifest %s: remote %q repeats", name, r.Name)
		}
		doc.Remotes[r.Name] = r.Fetch
		doc.remoteOrder = append(doc.remoteOrder, r.Name)
	}

	for _, p := range raw.Projects {
		if _, ok := doc.byName[p.Name]; ok {
			return nil, fmt.Errorf("manifest %s: project %q repeats", name, p.Name)
		}
		remoteName := p.Remote
		if remoteName == "" {
			remoteName = doc.DefaultRemote
		}
		if _, ok := doc.Remotes[remoteName]; !ok {
			return nil, fmt.Errorf("manifest %s: project %q references unknown remote %q", name, p.Name, remoteName)
		}
		proj := &Project{
			Name:       p.Name,
			Path:       p.Path,
			RemoteName: remoteName,
			Revision:   p.Revision,
			Upstream:   p.Upstream,
		}
		doc.projects = append(doc.projects, proj)
		doc.byName[p.Name] = proj
	}

	return doc, nil
}

// Load reads and parses the manifest file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	doc, err := Parse(name, data)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// LoadDir parses every .xml file directly under dir, sorted by name.
// Every .xml file in the root of a manifest repository is assumed to be
// a manifest document.
func LoadDir(dir string) ([]*Document, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.xml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var docs []*Document
	for _, p := range paths {
		doc, err := Load(p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Projects returns the document's project entries in file order.
func (d *Document) Projects() []*Project {
	return d.projects
}

// Project looks up a project entry by full repository name.
func (d *Document) Project(name string) (*Project, bool) {
	p, ok := d.byName[name]
	return p, ok
}

// EffectiveRevision returns the revision the document pins the project
// to, falling back to the document default when the entry has none.
func (d *Document) EffectiveRevision(p *Project) revision.Revision {
	if p.Revision != "" {
		return revision.Revision(p.Revision)
	}
	return revision.Revision(d.DefaultRevision)
}

// Fetch returns the fetch URL prefix for the project's remote.
func (d *Document) Fetch(p *Project) (string, error) {
	fetch, ok := d.Remotes[p.RemoteName]
	if !ok {
		return "", fmt.Errorf("manifest %s: project %q references unknown remote %q", d.Name, p.Name, p.RemoteName)
	}
	return fetch, nil
}

// SetRevision rewrites the project entry's revision to rev and reports
// whether the entry changed. A branch target equal to the document
// default elides the revision attribute entirely, and any change drops a
// stale upstream hint. Refs are stored by their short name, hashes
// verbatim.
func (d *Document) SetRevision(name string, rev revision.Revision) (bool, error) {
	p, ok := d.byName[name]
	if !ok {
		return false, fmt.Errorf("manifest %s: no project %q", d.Name, name)
	}

	value := rev.Short()
	if rev.Kind() == revision.Hash {
		value = string(rev)
	}
	if string(rev) == revision.BranchPrefix+d.DefaultRevision {
		value = ""
	}

	if p.Revision == value {
		return false, nil
	}

	p.Revision = value
	p.Upstream = ""
	d.changed = true
	return true, nil
}

// Changed reports whether any SetRevision call modified the document.
func (d *Document) Changed() bool {
	return d.changed
}

// Marshal serializes the document back to manifest XML. Remotes keep
// their parsed file order and the default element is emitted only when
// the source document carried one, keeping rewrite diffs minimal.
func (d *Document) Marshal() ([]byte, error) {
	raw := xmlManifest{}
	names := d.remoteOrder
	if len(names) != len(d.Remotes) {
		names = make([]string, 0, len(d.Remotes))
		for name := range d.Remotes {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	for _, name := range names {
		raw.Remotes = append(raw.Remotes, xmlRemote{Name: name, Fetch: d.Remotes[name]})
	}
	if d.defaultAttrs != nil {
		attrs := *d.defaultAttrs
		raw.Default = &attrs
	}
	for _, p := range d.projects {
		remoteName := p.RemoteName
		if remoteName == d.DefaultRemote {
			remoteName = ""
		}
		raw.Projects = append(raw.Projects, xmlProject{
			Name:     p.Name,
			Path:     p.Path,
			Remote:   remoteName,
			Revision: p.Revision,
			Upstream: p.Upstream,
		})
	}

	out, err := xml.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling manifest %s: %w", d.Name, err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// Write backs up the document (Path plus BackupSuffix) and rewrites it
// in place. It returns the backup path.
func (d *Document) Write() (string, error) {
	if d.Path == "" {
		return "", fmt.Errorf("manifest %s has no backing file", d.Name)
	}

	orig, err := os.ReadFile(d.Path)
	if err != nil {
		return "", fmt.Errorf("reading manifest for backup: %w", err)
	}
	backup := d.Path + BackupSuffix
	if err := os.WriteFile(backup, orig, 0o644); err != nil {
		return "", fmt.Errorf("writing backup: %w", err)
	}

	data, err := d.Marshal()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(d.Path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	return backup, nil
}
