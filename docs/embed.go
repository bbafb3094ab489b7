// Package docs bundles the long-form guide shipped with the mcpvisio binary.
package docs

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"gopkg.in/yaml.v3"
)

// FS contains the guide's markdown topics and their index.
//
//go:embed guide
var FS embed.FS

const indexPath = "guide/index.yaml"

// Topic is one guide page.
type Topic struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
	File  string `yaml:"file" json:"-"`
}

// Topics returns the guide topics in index order.
func Topics() ([]Topic, error) {
	return topicsFrom(FS)
}

func topicsFrom(fsys fs.FS) ([]Topic, error) {
	raw, err := fs.ReadFile(fsys, indexPath)
	if err != nil {
		return nil, fmt.Errorf("read docs index: %w", err)
	}
	var index struct {
		Topics []Topic `yaml:"topics"`
	}
	if err := yaml.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("parse docs index: %w", err)
	}
	return index.Topics, nil
}

// Read returns the markdown for the topic whose id matches, ignoring case.
func Read(id string) (Topic, string, error) {
	topics, err := Topics()
	if err != nil {
		return Topic{}, "", err
	}
	for _, t := range topics {
		if strings.EqualFold(t.ID, strings.TrimSpace(id)) {
			content, err := fs.ReadFile(FS, "guide/"+t.File)
			if err != nil {
				return Topic{}, "", fmt.Errorf("read topic %s: %w", t.ID, err)
			}
			return t, string(content), nil
		}
	}
	return Topic{}, "", fmt.Errorf("unknown topic %q", id)
}
