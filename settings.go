package dataembedder

import (
	"encoding/json"
	"fmt"
	"sort"
)

// GroupSettings is the serialised state of one annotated group.
type GroupSettings struct {
	Embed     bool   `json:"embed"`
	Dimension int    `json:"dimension"`
	Size      int    `json:"size"`
	Term      string `json:"term,omitempty"`
}

// settings is the JSON document produced by EncodeSettingsJSON. Field names
// match the settings files written by earlier versions of the tooling.
type settings struct {
	DataCoordinatesField     *string                   `json:"dataCoordinatesField"`
	FittedCoordinatesField   *string                   `json:"fittedCoordinatesField"`
	MaterialCoordinatesField *string                   `json:"materialCoordinatesField"`
	DataMarkerGroup          *string                   `json:"dataMarkerGroup"`
	DiagnosticLevel          int                       `json:"diagnosticLevel"`
	GroupData                map[string]*GroupSettings `json:"groupData"`
}

// DecodeSettingsJSON defines embedder settings from a JSON serialisation
// output by EncodeSettingsJSON. Field names are recorded and resolved to
// fields on the next Load; group embed flags and terms survive the group
// rebuild Load performs.
func (d *DataEmbedder) DecodeSettingsJSON(data []byte) error {
	var s settings
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	if s.DiagnosticLevel < 0 {
		return fmt.Errorf("decode settings: diagnosticLevel must be non-negative, got %d", s.DiagnosticLevel)
	}

	d.dataCoordinatesName = stringValue(s.DataCoordinatesField)
	d.fittedCoordinatesName = stringValue(s.FittedCoordinatesField)
	d.materialCoordinatesName = stringValue(s.MaterialCoordinatesField)
	d.markerGroupName = stringValue(s.DataMarkerGroup)
	d.diagnosticLevel = s.DiagnosticLevel

	d.groups = make(map[string]*groupInfo, len(s.GroupData))
	d.groupOrder = d.groupOrder[:0]
	for name, gs := range s.GroupData {
		if gs == nil {
			continue
		}
		d.groups[name] = &groupInfo{
			embed:     gs.Embed,
			dimension: gs.Dimension,
			size:      gs.Size,
			term:      gs.Term,
		}
		d.groupOrder = append(d.groupOrder, name)
	}
	// Map iteration order is random; Load rebuilds the discovered order.
	sort.Strings(d.groupOrder)
	return nil
}

// EncodeSettingsJSON returns the JSON encoding of the embedder settings.
func (d *DataEmbedder) EncodeSettingsJSON() ([]byte, error) {
	s := settings{
		DataCoordinatesField:     optionalString(d.dataCoordinatesName),
		FittedCoordinatesField:   optionalString(d.fittedCoordinatesName),
		MaterialCoordinatesField: optionalString(d.materialCoordinatesName),
		DataMarkerGroup:          optionalString(d.markerGroupName),
		DiagnosticLevel:          d.diagnosticLevel,
		GroupData:                make(map[string]*GroupSettings, len(d.groups)),
	}
	for name, gi := range d.groups {
		s.GroupData[name] = &GroupSettings{
			Embed:     gi.embed,
			Dimension: gi.dimension,
			Size:      gi.size,
			Term:      gi.term,
		}
	}
	data, err := json.MarshalIndent(&s, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return data, nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
