package host

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spinlet-dev/spinlet/domain/entities"
	"github.com/tetratelabs/wazero"
)

// dirMount maps a host directory to a guest path.
type dirMount struct {
	source   string // as declared
	hostDir  string
	guestDir string
}

// mountPlan is the resolved files grant of a component.
type mountPlan struct {
	dirs  []dirMount
	globs *globFS
}

// planMounts resolves the files entries of c. Glob patterns are expanded once
// against the application directory.
func planMounts(app *entities.App, c *entities.Component) (*mountPlan, error) {
	plan := &mountPlan{}
	var patterns []string
	for _, m := range c.Files {
		if m.IsGlob() {
			patterns = append(patterns, strings.TrimPrefix(m.Source, "./"))
			continue
		}
		plan.dirs = append(plan.dirs, dirMount{
			source:   m.Source,
			hostDir:  app.ResolvePath(m.Source),
			guestDir: m.Destination,
		})
	}
	if len(patterns) > 0 {
		root := app.Dir
		if root == "" {
			root = "."
		}
		g, err := newGlobFS(os.DirFS(root), patterns)
		if err != nil {
			return nil, err
		}
		plan.globs = g
	}
	return plan, nil
}

// fsConfig builds the guest filesystem. A directory mount whose source is
// gone is reported with its declared name.
func (p *mountPlan) fsConfig() (wazero.FSConfig, string, error) {
	cfg := wazero.NewFSConfig()
	if p == nil {
		return cfg, "", nil
	}
	if p.globs != nil {
		cfg = cfg.WithFSMount(p.globs, "/")
	}
	for _, d := range p.dirs {
		info, err := os.Stat(d.hostDir)
		if err != nil {
			return nil, d.source, err
		}
		if !info.IsDir() {
			return nil, d.source, fmt.Errorf("%s is not a directory", d.hostDir)
		}
		cfg = cfg.WithReadOnlyDirMount(d.hostDir, d.guestDir)
	}
	return cfg, "", nil
}

// globFS exposes only the files matched by a set of doublestar patterns, plus
// the directories leading to them.
type globFS struct {
	root  fs.FS
	files map[string]bool
	dirs  map[string]bool
}

func newGlobFS(root fs.FS, patterns []string) (*globFS, error) {
	g := &globFS{root: root, files: map[string]bool{}, dirs: map[string]bool{".": true}}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid files pattern %q", p)
		}
		matches, err := doublestar.Glob(root, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding files pattern %q: %w", p, err)
		}
		for _, m := range matches {
			g.files[m] = true
			for d := path.Dir(m); d != "."; d = path.Dir(d) {
				g.dirs[d] = true
			}
		}
	}
	return g, nil
}

// Files returns the granted paths in lexical order.
func (g *globFS) Files() []string {
	out := make([]string, 0, len(g.files))
	for f := range g.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Open implements fs.FS.
func (g *globFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	switch {
	case g.files[name]:
		return g.root.Open(name)
	case g.dirs[name]:
		f, err := g.root.Open(name)
		if err != nil {
			return nil, err
		}
		return &globDir{File: f, fs: g, name: name}, nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// globDir filters directory listings down to granted entries.
type globDir struct {
	fs.File
	fs      *globFS
	name    string
	entries []fs.DirEntry
	loaded  bool
}

// ReadDir implements fs.ReadDirFile.
func (d *globDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.loaded {
		rd, ok := d.File.(fs.ReadDirFile)
		if !ok {
			return nil, &fs.PathError{Op: "readdir", Path: d.name, Err: fs.ErrInvalid}
		}
		all, err := rd.ReadDir(-1)
		if err != nil {
			return nil, err
		}
		for _, e := range all {
			p := path.Join(d.name, e.Name())
			if d.fs.files[p] || d.fs.dirs[p] {
				d.entries = append(d.entries, e)
			}
		}
		d.loaded = true
	}

	if n <= 0 {
		out := d.entries
		d.entries = nil
		return out, nil
	}
	if len(d.entries) == 0 {
		return nil, io.EOF
	}
	if n > len(d.entries) {
		n = len(d.entries)
	}
	out := d.entries[:n]
	d.entries = d.entries[n:]
	return out, nil
}
