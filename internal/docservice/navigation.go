package docservice

import (
	"context"
	"sort"
	"strings"

	"github.com/sickfar/mdumb/internal/storage"
)

// NavItem is one entry of the navigation tree. Folders carry Children;
// a folder's index document is folded into the folder entry.
type NavItem struct {
	Title    string    `json:"title"`
	Slug     string    `json:"slug"`
	Order    int       `json:"order"`
	Path     string    `json:"path"`
	Children []NavItem `json:"children,omitempty"`
}

type navNode struct {
	name    string
	path    string
	title   string
	folders map[string]*navNode
	files   []NavItem
}

func newNavNode(name, p string) *navNode {
	return &navNode{name: name, path: p, title: name, folders: make(map[string]*navNode)}
}

// Navigation builds the folder tree of visible documents: folders first,
// then documents, each alphabetically.
func (s *Service) Navigation(_ context.Context) ([]NavItem, error) {
	rows, _, err := s.db.List(0, 0)
	if err != nil {
		return nil, err
	}

	root := newNavNode("", "")
	for _, r := range rows {
		parts := strings.Split(r.Path, "/")
		n := root
		for i, dir := range parts[:len(parts)-1] {
			child, ok := n.folders[dir]
			if !ok {
				child = newNavNode(dir, strings.Join(parts[:i+1], "/"))
				n.folders[dir] = child
			}
			n = child
		}
		file := parts[len(parts)-1]
		if file == storage.IndexName && n != root {
			n.title = r.Title
			continue
		}
		n.files = append(n.files, NavItem{
			Title: r.Title,
			Slug:  strings.TrimSuffix(r.Path, ".md"),
			Path:  r.Path,
		})
	}
	return root.items(), nil
}

func (n *navNode) items() []NavItem {
	names := make([]string, 0, len(n.folders))
	for name := range n.folders {
		names = append(names, name)
	}
	sort.Strings(names)
	sort.Slice(n.files, func(i, j int) bool { return n.files[i].Path < n.files[j].Path })

	out := make([]NavItem, 0, len(names)+len(n.files))
	for _, name := range names {
		f := n.folders[name]
		out = append(out, NavItem{
			Title:    f.title,
			Slug:     f.path,
			Order:    len(out),
			Path:     f.path,
			Children: f.items(),
		})
	}
	for _, item := range n.files {
		item.Order = len(out)
		out = append(out, item)
	}
	return out
}
