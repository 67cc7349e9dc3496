package level

import (
	"strings"
	"testing"
)

const validPack = `{
  "meta": {"season": "2026", "name": "Test Season"},
  "levels": [
    {
      "id": 1,
      "week": 1,
      "title": "First Dot",
      "mentor": "LEAH",
      "dialogue_pre": "Walk before you run.",
      "hint_text": "step_to moves one count at a time.",
      "dialogue_post": "Clean.",
      "allowed_api": ["step_to", "get_pos", "print"],
      "start_entities": [
        {"name": "DM", "section": "LEADERSHIP", "x": 2, "y": 10}
      ],
      "objective": [
        {"name": "dm_on_dot", "type": "reach", "entity": "DM", "target": {"x": 10, "y": 10}}
      ],
      "starter_code": "band.step_to(\"DM\", 10, 10, 8)\n"
    },
    {
      "id": 2,
      "week": 2,
      "title": "Wind Line",
      "allowed_api": ["step_to"],
      "start_entities": [
        {"name": "W1", "section": "WINDS", "x": 0, "y": 0}
      ],
      "objective": [
        {"name": "winds", "type": "line", "count": 5, "x_start": 6, "y": 8, "dx": 2}
      ],
      "starter_code": ""
    }
  ]
}`

func TestParsePackValid(t *testing.T) {
	p, err := ParsePack([]byte(validPack))
	if err != nil {
		t.Fatalf("ParsePack: %v", err)
	}
	if len(p.Levels) != 2 {
		t.Fatalf("levels = %d, want 2", len(p.Levels))
	}
	lv := p.Levels[0]
	if lv.Title != "First Dot" || lv.Mentor != "LEAH" {
		t.Errorf("level 1 decoded wrong: %+v", lv)
	}
	if len(lv.Objective) != 1 || lv.Objective[0].Type != "reach" {
		t.Errorf("objective decoded wrong: %+v", lv.Objective)
	}
	if lv.Objective[0].Target == nil || lv.Objective[0].Target.X != 10 {
		t.Errorf("target decoded wrong: %+v", lv.Objective[0].Target)
	}
	if p.Meta == nil {
		t.Error("meta should pass through")
	}
}

func TestParsePackStarts(t *testing.T) {
	p, err := ParsePack([]byte(validPack))
	if err != nil {
		t.Fatalf("ParsePack: %v", err)
	}
	starts := p.Levels[0].Starts()
	if len(starts) != 1 {
		t.Fatalf("starts = %d, want 1", len(starts))
	}
	s := starts[0]
	if s.Name != "DM" || s.Section != "LEADERSHIP" || s.X != 2 || s.Y != 10 || !s.Active {
		t.Errorf("start state wrong: %+v", s)
	}
}

func TestParsePackByID(t *testing.T) {
	p, err := ParsePack([]byte(validPack))
	if err != nil {
		t.Fatalf("ParsePack: %v", err)
	}
	if lv, ok := p.ByID(2); !ok || lv.Title != "Wind Line" {
		t.Errorf("ByID(2) = %v, %v", lv, ok)
	}
	if _, ok := p.ByID(99); ok {
		t.Error("ByID(99) should miss")
	}
}

func TestParsePackRejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"not json", `{`, "invalid JSON"},
		{"missing levels", `{"meta": {}}`, "schema violation"},
		{"empty levels", `{"meta": {}, "levels": []}`, "schema violation"},
		{
			"bad objective type",
			strings.Replace(validPack, `"type": "reach"`, `"type": "teleport"`, 1),
			"schema violation",
		},
		{
			"level id zero",
			strings.Replace(validPack, `"id": 1`, `"id": 0`, 1),
			"schema violation",
		},
		{
			"duplicate level id",
			strings.Replace(validPack, `"id": 2`, `"id": 1`, 1),
			"duplicate level id",
		},
		{
			"duplicate start entity",
			strings.Replace(validPack,
				`{"name": "DM", "section": "LEADERSHIP", "x": 2, "y": 10}`,
				`{"name": "DM", "section": "LEADERSHIP", "x": 2, "y": 10},
				 {"name": "DM", "section": "WINDS", "x": 4, "y": 10}`, 1),
			"duplicate start entity",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePack([]byte(tc.raw))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadPackMissingFile(t *testing.T) {
	if _, err := LoadPack("no/such/pack.json"); err == nil {
		t.Fatal("expected error")
	}
}

func TestShippedPackParses(t *testing.T) {
	p, err := LoadPack("../../data/levels.json")
	if err != nil {
		t.Fatalf("shipped pack: %v", err)
	}
	if len(p.Levels) == 0 {
		t.Fatal("shipped pack has no levels")
	}
	for _, lv := range p.Levels {
		if lv.StarterCode == "" {
			t.Errorf("level %d: no starter code", lv.ID)
		}
	}
}
