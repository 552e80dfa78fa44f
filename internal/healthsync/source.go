package healthsync

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSource lists source posts from a YAML export of the health service:
//
//	posts:
//	  - externalId: P-001
//	    name: Posyandu Mawar
//	    address: Jl. Merdeka 1, Bandung
//	    location: {lat: -6.91, lng: 107.61}
//	    updatedAt: 2026-01-02T15:04:05Z
type FileSource struct {
	Path string
}

type sourceFile struct {
	Posts []SourcePost `yaml:"posts"`
}

func (f FileSource) ListPosts(ctx context.Context) ([]SourcePost, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	var doc sourceFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse source file: %w", err)
	}
	return doc.Posts, nil
}
