// Package modelio reads and writes JSON model documents: field definitions,
// nodes, datapoints, elements and annotated groups. Documents apply to a
// region with merge semantics so a fitted geometry file and a scaffold file
// can be layered into one root region.
package modelio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scaffoldtools/dataembedder/scaffold"
)

// maxDocumentSize caps model document reads (64MB).
const maxDocumentSize = 64 * 1024 * 1024

// Document is the on-disk form of a region's contents.
type Document struct {
	Fields     []FieldSpec   `json:"fields,omitempty"`
	Nodes      []NodeSpec    `json:"nodes,omitempty"`
	Datapoints []NodeSpec    `json:"datapoints,omitempty"`
	Elements   []ElementSpec `json:"elements,omitempty"`
	Groups     []GroupSpec   `json:"groups,omitempty"`
}

// FieldSpec defines a field. String fields carry no components.
type FieldSpec struct {
	Name       string   `json:"name"`
	Components []string `json:"components,omitempty"`
	Coordinate bool     `json:"coordinate,omitempty"`
	String     bool     `json:"string,omitempty"`
}

// NodeSpec carries one node or datapoint with its per-field parameters.
type NodeSpec struct {
	ID      int                  `json:"id"`
	Values  map[string][]float64 `json:"values,omitempty"`
	Strings map[string]string    `json:"strings,omitempty"`
}

// ElementSpec defines one element. Node ids are in local order with xi1
// varying fastest.
type ElementSpec struct {
	ID        int   `json:"id"`
	Dimension int   `json:"dimension"`
	Nodes     []int `json:"nodes"`
}

// GroupSpec defines an annotated group's membership.
type GroupSpec struct {
	Name       string          `json:"name"`
	Elements   []GroupElements `json:"elements,omitempty"`
	Nodes      []int           `json:"nodes,omitempty"`
	Datapoints []int           `json:"datapoints,omitempty"`
}

// GroupElements lists a group's element ids of one dimension.
type GroupElements struct {
	Dimension int   `json:"dimension"`
	IDs       []int `json:"ids"`
}

// ReadFile loads a model document from a JSON file.
func ReadFile(path string) (*Document, error) {
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat model document: %w", err)
	}
	if info.Size() > maxDocumentSize {
		return nil, fmt.Errorf("model document too large: %d bytes (max %d)", info.Size(), maxDocumentSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read model document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse model document %s: %w", cleanPath, err)
	}
	return &doc, nil
}

// WriteFile writes a model document as indented JSON.
func WriteFile(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode model document: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write model document: %w", err)
	}
	return nil
}

// Apply merges the document into the region. Fields are created if absent
// (existing definitions must agree), node values are merged by id, elements
// are created if absent (existing topology must agree), and group membership
// accumulates.
func (doc *Document) Apply(region *scaffold.Region) error {
	for _, fs := range doc.Fields {
		if err := applyField(region, fs); err != nil {
			return err
		}
	}
	if err := applyNodes(region, region.Nodes(), doc.Nodes); err != nil {
		return err
	}
	if err := applyNodes(region, region.Datapoints(), doc.Datapoints); err != nil {
		return err
	}
	for _, es := range doc.Elements {
		if err := applyElement(region, es); err != nil {
			return err
		}
	}
	for _, gs := range doc.Groups {
		if err := applyGroup(region, gs); err != nil {
			return err
		}
	}
	return nil
}

func applyField(region *scaffold.Region, fs FieldSpec) error {
	if fs.Name == "" {
		return fmt.Errorf("field with empty name")
	}
	existing := region.FindField(fs.Name)
	if existing == nil {
		var err error
		if fs.String {
			_, err = region.CreateStoredStringField(fs.Name)
		} else {
			_, err = region.CreateFiniteElementField(fs.Name, fs.Components, fs.Coordinate)
		}
		return err
	}
	if fs.String != existing.IsStoredString() {
		return fmt.Errorf("field %q: type conflicts with existing definition", fs.Name)
	}
	if !fs.String && len(fs.Components) != existing.ComponentCount() {
		return fmt.Errorf("field %q: %d components conflict with existing %d",
			fs.Name, len(fs.Components), existing.ComponentCount())
	}
	return nil
}

func applyNodes(region *scaffold.Region, nodeset *scaffold.Nodeset, specs []NodeSpec) error {
	for _, ns := range specs {
		node := nodeset.FindOrCreate(ns.ID)
		for fieldName, values := range ns.Values {
			field := region.FindField(fieldName)
			if field == nil {
				return fmt.Errorf("%s %d: values for undefined field %q", nodeset.Domain(), ns.ID, fieldName)
			}
			if err := node.SetValues(field, values); err != nil {
				return err
			}
		}
		for fieldName, s := range ns.Strings {
			field := region.FindField(fieldName)
			if field == nil {
				return fmt.Errorf("%s %d: string for undefined field %q", nodeset.Domain(), ns.ID, fieldName)
			}
			if err := node.SetString(field, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyElement(region *scaffold.Region, es ElementSpec) error {
	mesh := region.Mesh(es.Dimension)
	if mesh == nil {
		return fmt.Errorf("element %d: invalid dimension %d", es.ID, es.Dimension)
	}
	if existing := mesh.Find(es.ID); existing != nil {
		have := existing.NodeIDs()
		if len(have) != len(es.Nodes) {
			return fmt.Errorf("element %d (%dd): topology conflicts with existing element", es.ID, es.Dimension)
		}
		for i, nid := range es.Nodes {
			if have[i] != nid {
				return fmt.Errorf("element %d (%dd): topology conflicts with existing element", es.ID, es.Dimension)
			}
		}
		return nil
	}
	_, err := mesh.Create(es.ID, es.Nodes)
	return err
}

func applyGroup(region *scaffold.Region, gs GroupSpec) error {
	group, err := region.FindOrCreateGroup(gs.Name)
	if err != nil {
		return err
	}
	for _, ge := range gs.Elements {
		for _, id := range ge.IDs {
			if err := group.AddElement(ge.Dimension, id); err != nil {
				return err
			}
		}
	}
	for _, id := range gs.Nodes {
		if err := group.AddNode(id); err != nil {
			return err
		}
	}
	for _, id := range gs.Datapoints {
		if err := group.AddDatapoint(id); err != nil {
			return err
		}
	}
	return nil
}
