package collector

import (
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/grovetools/repostore/pkg/models"
)

type language struct {
	name string
	kind string
}

var languagesByExt = map[string]language{
	".go":   {"Go", "programming"},
	".js":   {"JavaScript", "programming"},
	".jsx":  {"JavaScript", "programming"},
	".ts":   {"TypeScript", "programming"},
	".tsx":  {"TypeScript", "programming"},
	".py":   {"Python", "programming"},
	".rb":   {"Ruby", "programming"},
	".java": {"Java", "programming"},
	".rs":   {"Rust", "programming"},
	".c":    {"C", "programming"},
	".h":    {"C", "programming"},
	".cc":   {"C++", "programming"},
	".cpp":  {"C++", "programming"},
	".sh":   {"Shell", "programming"},
	".html": {"HTML", "markup"},
	".css":  {"CSS", "markup"},
	".md":   {"Markdown", "prose"},
	".json": {"JSON", "data"},
	".yml":  {"YAML", "data"},
	".yaml": {"YAML", "data"},
	".toml": {"TOML", "data"},
}

// inventory totals file sizes by language across the commit's tree.
// Languages are ordered by size, largest first.
func inventory(c *object.Commit) (*models.Inventory, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}

	totals := make(map[string]*models.Lang)
	err = tree.Files().ForEach(func(f *object.File) error {
		lang, ok := languagesByExt[strings.ToLower(path.Ext(f.Name))]
		if !ok {
			return nil
		}
		entry, ok := totals[lang.name]
		if !ok {
			entry = &models.Lang{Name: lang.name, Type: lang.kind}
			totals[lang.name] = entry
		}
		if f.Size > 0 {
			entry.TotalBytes += uint64(f.Size)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv := &models.Inventory{Languages: make([]*models.Lang, 0, len(totals))}
	for _, l := range totals {
		inv.Languages = append(inv.Languages, l)
	}
	sort.Slice(inv.Languages, func(i, j int) bool {
		a, b := inv.Languages[i], inv.Languages[j]
		if a.TotalBytes != b.TotalBytes {
			return a.TotalBytes > b.TotalBytes
		}
		return a.Name < b.Name
	})
	return inv, nil
}
