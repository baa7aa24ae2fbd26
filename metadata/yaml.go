package metadata

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/dashing-go/dashing/query/fetch"
)

// mappingFile is the YAML form of a set of record mappings:
//
//	entities:
//	  - type: Blog
//	    table: blogs
//	    primary_key: id
//	    columns: [id, title, author_id]
//	    relations:
//	      - navigation: Author
//	        target: User
//	        cardinality: one
//	        foreign_key: author_id
//	      - navigation: Posts
//	        target: Post
//	        cardinality: many
type mappingFile struct {
	Entities []entityMapping `yaml:"entities"`
}

type entityMapping struct {
	Type       string            `yaml:"type"`
	Table      string            `yaml:"table"`
	PrimaryKey string            `yaml:"primary_key"`
	Columns    []string          `yaml:"columns"`
	Relations  []relationMapping `yaml:"relations"`
}

type relationMapping struct {
	Navigation  string `yaml:"navigation"`
	Target      string `yaml:"target"`
	Cardinality string `yaml:"cardinality"`
	ForeignKey  string `yaml:"foreign_key"`
}

// LoadMapping reads a YAML mapping into a Configuration of Record entities.
func LoadMapping(r io.Reader) (*Configuration, error) {
	var file mappingFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode mapping: %w", err)
	}

	maps := make([]*Map, 0, len(file.Entities))
	for _, e := range file.Entities {
		rels := make([]Relation, 0, len(e.Relations))
		for _, rm := range e.Relations {
			card, err := parseCardinality(rm.Cardinality)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidMap, e.Type, rm.Navigation, err)
			}
			rels = append(rels, Relation{
				Navigation:  rm.Navigation,
				Target:      rm.Target,
				Cardinality: card,
				ForeignKey:  rm.ForeignKey,
			})
		}
		maps = append(maps, NewRecordMap(e.Type, e.Table, e.PrimaryKey, e.Columns, rels...))
	}
	return NewConfiguration(maps...)
}

// LoadMappingFile reads a YAML mapping from fs.
func LoadMappingFile(fs afero.Fs, path string) (*Configuration, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping: %w", err)
	}
	defer f.Close()
	cfg, err := LoadMapping(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func parseCardinality(s string) (fetch.Cardinality, error) {
	switch s {
	case "one", "to_one", "":
		return fetch.ToOne, nil
	case "many", "to_many":
		return fetch.ToMany, nil
	}
	return 0, fmt.Errorf("unknown cardinality %q", s)
}
