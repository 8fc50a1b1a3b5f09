package schema

import (
	"bytes"
	"encoding/json"
	"sort"
)

// EquipmentType enumerates the recognized unit operation types.
// Dispatch over this set is exhaustive: anything outside it is handled by
// the generic pass-through calculator, never an error.
type EquipmentType string

const (
	EquipmentUltrafiltration EquipmentType = "ultrafiltration"
	EquipmentFeedTank        EquipmentType = "feed_tank"
	EquipmentTank            EquipmentType = "tank"
	EquipmentPump            EquipmentType = "pump"
	EquipmentCustom          EquipmentType = "custom"
	EquipmentGeneric         EquipmentType = "generic"
)

// Stream is the state of a process stream. The solver mutates its own copy
// of each stream in place across iterations; streams are never destroyed
// mid-solve.
type Stream struct {
	ID              string  `json:"stream_id"`
	FlowRate        float64 `json:"flow_rate"`     // m³/h
	Pressure        float64 `json:"pressure"`      // bar
	Temperature     float64 `json:"temperature"`   // °C
	Concentration   float64 `json:"concentration"` // g/L
	SourceEquipment string  `json:"source_equipment"`
	TargetEquipment string  `json:"target_equipment"`
	SourcePort      string  `json:"source_port"`
	TargetPort      string  `json:"target_port"`
}

// UnmarshalJSON applies engineering defaults for omitted fields:
// 1 bar pressure, 25 °C temperature.
func (s *Stream) UnmarshalJSON(data []byte) error {
	type alias Stream
	a := alias{Pressure: 1.0, Temperature: 25.0}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = Stream(a)
	return nil
}

// Clone returns an independent copy of the stream.
func (s *Stream) Clone() *Stream {
	c := *s
	return &c
}

// Equipment is a node in the flowsheet graph. Immutable during a solve.
type Equipment struct {
	ID            string         `json:"equipment_id"`
	Type          EquipmentType  `json:"equipment_type"`
	Config        map[string]any `json:"config"`
	InletStreams  []string       `json:"inlet_streams"`
	OutletStreams []string       `json:"outlet_streams"`
}

// Flowsheet is the aggregate of all equipment and streams.
//
// Connections is part of the persisted shape but carries no solver logic;
// topology lives in each equipment's inlet/outlet lists.
//
// Constraints are optional CEL expressions checked against the converged
// result; violations are reported as advisory errors, never a solve failure.
type Flowsheet struct {
	Equipment   map[string]*Equipment        `json:"equipment"`
	Streams     map[string]*Stream           `json:"streams"`
	Connections map[string]map[string]string `json:"connections,omitempty"`
	Constraints []string                     `json:"constraints,omitempty"`

	// equipmentOrder preserves the declaration order of the equipment
	// object from the source document. Gauss-Seidel sweeps follow this
	// order, so it is part of the observable contract.
	equipmentOrder []string
}

// UnmarshalJSON decodes the flowsheet and captures the declaration order of
// the equipment keys, which standard map decoding discards.
func (f *Flowsheet) UnmarshalJSON(data []byte) error {
	type alias Flowsheet
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = Flowsheet(a)
	f.equipmentOrder = equipmentKeyOrder(data)
	return nil
}

// EquipmentOrder returns equipment IDs in declaration order. When the
// flowsheet was built programmatically (no decode), IDs are returned in
// lexical order so sweeps stay deterministic.
func (f *Flowsheet) EquipmentOrder() []string {
	if len(f.equipmentOrder) == len(f.Equipment) {
		return f.equipmentOrder
	}
	ids := make([]string, 0, len(f.Equipment))
	for id := range f.Equipment {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetEquipmentOrder fixes the sweep order for programmatically built
// flowsheets. Unknown IDs are ignored at solve time.
func (f *Flowsheet) SetEquipmentOrder(ids []string) {
	f.equipmentOrder = ids
}

// CloneStreams returns a deep copy of the streams map. Each solve owns an
// exclusive copy, so the input flowsheet is never mutated.
func (f *Flowsheet) CloneStreams() map[string]*Stream {
	streams := make(map[string]*Stream, len(f.Streams))
	for id, s := range f.Streams {
		streams[id] = s.Clone()
	}
	return streams
}

// equipmentKeyOrder walks the raw document and collects the keys of the
// top-level "equipment" object in order of appearance.
func equipmentKeyOrder(data []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := keyTok.(string)
		if key != "equipment" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
			continue
		}
		if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
			return nil
		}
		var order []string
		for dec.More() {
			idTok, err := dec.Token()
			if err != nil {
				return nil
			}
			id, _ := idTok.(string)
			order = append(order, id)
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
		}
		return order
	}
	return nil
}
