// Package level loads and validates drill level packs. A pack is a
// single JSON document holding every level for a season plus opaque
// narrative metadata. Packs are validated against an embedded JSON
// Schema before any field is trusted, then decoded into immutable
// structs.
package level

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/codeofpride/drillcore/internal/band"
)

//go:embed schema.json
var packSchema string

// ConstraintSpec is one named objective constraint as authored in
// level data. Fields beyond Name and Type are type-dependent; the
// objective package interprets them.
type ConstraintSpec struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Entity    string   `json:"entity,omitempty"`
	Entities  []string `json:"entities,omitempty"`
	Obstacle  string   `json:"obstacle,omitempty"`
	Target    *Point   `json:"target,omitempty"`
	Center    *Point   `json:"center,omitempty"`
	Y         int      `json:"y,omitempty"`
	X         int      `json:"x,omitempty"`
	XStart    int      `json:"x_start,omitempty"`
	YStart    int      `json:"y_start,omitempty"`
	DX        int      `json:"dx,omitempty"`
	DY        int      `json:"dy,omitempty"`
	Count     int      `json:"count,omitempty"`
	Radius    float64  `json:"radius,omitempty"`
	Tolerance float64  `json:"tolerance,omitempty"`
	Ticks     int      `json:"ticks,omitempty"`
	Prefix    string   `json:"prefix,omitempty"`
}

// Point is a field position in 8-to-5 grid dots.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Level is one week's drill assignment. Narrative fields are opaque to
// the engine and pass through to presentation untouched.
type Level struct {
	ID            int              `json:"id"`
	Week          int              `json:"week"`
	Title         string           `json:"title"`
	Mentor        string           `json:"mentor"`
	DialoguePre   string           `json:"dialogue_pre"`
	HintText      string           `json:"hint_text"`
	DialoguePost  string           `json:"dialogue_post"`
	AllowedAPI    []string         `json:"allowed_api"`
	StartEntities []StartEntity    `json:"start_entities"`
	Objective     []ConstraintSpec `json:"objective"`
	StarterCode   string           `json:"starter_code"`
}

// StartEntity is a marcher on the field before the first count.
type StartEntity struct {
	Name    string `json:"name"`
	Section string `json:"section"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
}

// Starts converts the level's start entities to simulation state.
func (l *Level) Starts() []band.EntityState {
	out := make([]band.EntityState, len(l.StartEntities))
	for i, s := range l.StartEntities {
		out[i] = band.EntityState{Name: s.Name, Section: s.Section, X: s.X, Y: s.Y, Active: true}
	}
	return out
}

// Pack is the whole season file.
type Pack struct {
	Meta   json.RawMessage `json:"meta"`
	Levels []*Level        `json:"levels"`
}

// ByID returns the level with the given id.
func (p *Pack) ByID(id int) (*Level, bool) {
	for _, l := range p.Levels {
		if l.ID == id {
			return l, true
		}
	}
	return nil, false
}

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("pack.schema.json", bytes.NewReader([]byte(packSchema))); err != nil {
		panic(fmt.Sprintf("level: bad embedded schema: %v", err))
	}
	s, err := c.Compile("pack.schema.json")
	if err != nil {
		panic(fmt.Sprintf("level: bad embedded schema: %v", err))
	}
	return s
}

// ParsePack validates raw pack JSON against the schema and decodes it.
// Duplicate level ids and duplicate start entity names within a level
// are rejected here so downstream code never sees them.
func ParsePack(raw []byte) (*Pack, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("level pack: invalid JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("level pack: schema violation: %w", err)
	}
	var p Pack
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("level pack: decode: %w", err)
	}
	seen := map[int]bool{}
	for _, l := range p.Levels {
		if seen[l.ID] {
			return nil, fmt.Errorf("level pack: duplicate level id %d", l.ID)
		}
		seen[l.ID] = true
		names := map[string]bool{}
		for _, s := range l.StartEntities {
			if names[s.Name] {
				return nil, fmt.Errorf("level %d: duplicate start entity %q", l.ID, s.Name)
			}
			names[s.Name] = true
		}
	}
	return &p, nil
}

// LoadPack reads and parses a pack file.
func LoadPack(path string) (*Pack, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("level pack: %w", err)
	}
	return ParsePack(raw)
}
