// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package catalog loads a static set of view definitions from a YAML
// file into a manager.Catalog. The view DSL itself is out of scope;
// this is a minimal loader that lets cmd/viewsched and tests construct
// a catalog without a database, not a replacement for one.
package catalog

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/warehouse-sched/viewsched/internal/ident"
	"github.com/warehouse-sched/viewsched/internal/view"
)

// entry is the on-disk shape of a single view definition.
type entry struct {
	Name           string   `yaml:"name"`
	Path           string   `yaml:"path"`
	Format         string   `yaml:"format"`
	Dependencies   []string `yaml:"dependencies"`
	ResourceHashes []string `yaml:"resourceHashes"`
	Definition     string   `yaml:"definition"`
	Transformation struct {
		Kind      string `yaml:"kind"`
		Driver    string `yaml:"driver"`
		Statement string `yaml:"statement"`
	} `yaml:"transformation"`
}

// document is the on-disk shape of a whole catalog file.
type document struct {
	Views []entry `yaml:"views"`
}

// Static is an in-memory manager.Catalog loaded once from a file.
type Static map[ident.ViewID]*view.View

// Lookup implements manager.Catalog.
func (s Static) Lookup(id ident.ViewID) (*view.View, bool) {
	v, ok := s[id]
	return v, ok
}

func parseFormat(s string) view.Format {
	switch s {
	case "parquet":
		return view.FormatParquet
	case "avro":
		return view.FormatAvro
	case "text":
		return view.FormatText
	default:
		return view.FormatUnknown
	}
}

func parseKind(s string) (view.TransformationKind, error) {
	switch s {
	case "", "noop":
		return view.NoOp, nil
	case "filesystem":
		return view.FilesystemTransformation, nil
	case "compute":
		return view.ComputeTransformation, nil
	default:
		return 0, errors.Errorf("catalog: unknown transformation kind %q", s)
	}
}

// Load parses path as a YAML catalog document and resolves every
// dependency name to the ViewID of an entry defined in the same file.
func Load(path string) (Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading catalog file")
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing catalog file")
	}

	byName := make(map[string]ident.ViewID, len(doc.Views))
	out := make(Static, len(doc.Views))

	for _, e := range doc.Views {
		if e.Name == "" || e.Path == "" {
			return nil, errors.Errorf("catalog: entry missing name or path: %+v", e)
		}
		digest := ident.NewVersionDigest(e.ResourceHashes, e.Definition)
		id := ident.NewViewID(e.Path, string(digest))
		byName[e.Name] = id
	}

	for _, e := range doc.Views {
		kind, err := parseKind(e.Transformation.Kind)
		if err != nil {
			return nil, err
		}

		deps := make([]ident.ViewID, 0, len(e.Dependencies))
		for _, depName := range e.Dependencies {
			depID, ok := byName[depName]
			if !ok {
				return nil, errors.Errorf("catalog: view %q depends on undefined view %q", e.Name, depName)
			}
			deps = append(deps, depID)
		}

		digest := ident.NewVersionDigest(e.ResourceHashes, e.Definition)
		v := &view.View{
			ID:           byName[e.Name],
			Name:         e.Name,
			Dependencies: deps,
			Transformation: view.Transformation{
				Kind:      kind,
				Driver:    e.Transformation.Driver,
				Statement: e.Transformation.Statement,
			},
			Format:        parseFormat(e.Format),
			FullPath:      e.Path,
			VersionDigest: digest,
		}
		out[v.ID] = v
	}

	return out, nil
}
