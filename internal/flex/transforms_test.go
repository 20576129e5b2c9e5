package flex

import (
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestTransformTrim(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	RegisterTransforms(L)

	tests := []struct {
		input    string
		expected string
	}{
		{"  hello  ", "hello"},
		{"hello", "hello"},
		{"", ""},
	}

	for _, tt := range tests {
		if err := L.DoString(`result = trim("` + tt.input + `")`); err != nil {
			t.Fatalf("failed to call trim: %v", err)
		}
		if got := L.GetGlobal("result").String(); got != tt.expected {
			t.Errorf("trim(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestTransformLowerUpper(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	RegisterTransforms(L)

	if err := L.DoString(`result = pgnode.transforms.lower("HELLO")`); err != nil {
		t.Fatalf("failed to call lower: %v", err)
	}
	if L.GetGlobal("result").String() != "hello" {
		t.Errorf("lower = %q, want 'hello'", L.GetGlobal("result").String())
	}

	if err := L.DoString(`result = pgnode.transforms.upper("hello")`); err != nil {
		t.Fatalf("failed to call upper: %v", err)
	}
	if L.GetGlobal("result").String() != "HELLO" {
		t.Errorf("upper = %q, want 'HELLO'", L.GetGlobal("result").String())
	}
}

func TestTransformCleanSpaces(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	RegisterTransforms(L)

	if err := L.DoString(`result = pgnode.transforms.clean_spaces("  hello   world  ")`); err != nil {
		t.Fatalf("failed to call clean_spaces: %v", err)
	}
	result := L.GetGlobal("result").String()
	if result != "hello world" {
		t.Errorf("clean_spaces = %q, want %q", result, "hello world")
	}
}

func TestTransformTruncate(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	RegisterTransforms(L)

	if err := L.DoString(`result = pgnode.transforms.truncate("hello world", 5)`); err != nil {
		t.Fatalf("failed to call truncate: %v", err)
	}
	if result := L.GetGlobal("result").String(); result != "hello" {
		t.Errorf("truncate = %q, want %q", result, "hello")
	}

	// No truncation needed
	if err := L.DoString(`result = pgnode.transforms.truncate("hi", 10)`); err != nil {
		t.Fatalf("failed to call truncate: %v", err)
	}
	if result := L.GetGlobal("result").String(); result != "hi" {
		t.Errorf("truncate = %q, want %q", result, "hi")
	}
}

func TestTransformParseInt(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	RegisterTransforms(L)

	tests := []struct {
		input    string
		expected int64
	}{
		{"123", 123},
		{"-456", -456},
		{"  789  ", 789},
		{"3.14", 3},
		{"abc", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if err := L.DoString(`result = parse_int("` + tt.input + `")`); err != nil {
			t.Fatalf("failed to call parse_int: %v", err)
		}
		result := int64(L.GetGlobal("result").(lua.LNumber))
		if result != tt.expected {
			t.Errorf("parse_int(%q) = %d, want %d", tt.input, result, tt.expected)
		}
	}
}

func TestTransformParseIntWithDefault(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	RegisterTransforms(L)

	if err := L.DoString(`result = pgnode.transforms.parse_int("invalid", 42)`); err != nil {
		t.Fatalf("failed to call parse_int with default: %v", err)
	}
	result := int64(L.GetGlobal("result").(lua.LNumber))
	if result != 42 {
		t.Errorf("parse_int with default = %d, want 42", result)
	}
}

func TestTransformParseReal(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	RegisterTransforms(L)

	if err := L.DoString(`result = pgnode.transforms.parse_real("3.14159")`); err != nil {
		t.Fatalf("failed to call parse_real: %v", err)
	}
	result := float64(L.GetGlobal("result").(lua.LNumber))
	if result < 3.14 || result > 3.15 {
		t.Errorf("parse_real(3.14159) = %f, want ~3.14159", result)
	}
}

func TestTransformParseBool(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	RegisterTransforms(L)

	trueCases := []string{"yes", "true", "1", "on", "Yes", "TRUE"}
	for _, input := range trueCases {
		if err := L.DoString(`result = parse_bool("` + input + `")`); err != nil {
			t.Fatalf("failed to call parse_bool: %v", err)
		}
		if L.GetGlobal("result") != lua.LTrue {
			t.Errorf("parse_bool(%q) = false, want true", input)
		}
	}

	falseCases := []string{"no", "false", "0", "off", ""}
	for _, input := range falseCases {
		if err := L.DoString(`result = parse_bool("` + input + `")`); err != nil {
			t.Fatalf("failed to call parse_bool: %v", err)
		}
		if L.GetGlobal("result") != lua.LFalse {
			t.Errorf("parse_bool(%q) = true, want false", input)
		}
	}
}

func TestTransformGetName(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	RegisterTransforms(L)

	// Plain name
	if err := L.DoString(`result = get_name({name = "Paris"})`); err != nil {
		t.Fatalf("failed to call get_name: %v", err)
	}
	if result := L.GetGlobal("result").String(); result != "Paris" {
		t.Errorf("get_name = %q, want %q", result, "Paris")
	}

	// Fallback to int_name
	if err := L.DoString(`result = get_name({int_name = "International"})`); err != nil {
		t.Fatalf("failed to call get_name: %v", err)
	}
	if result := L.GetGlobal("result").String(); result != "International" {
		t.Errorf("get_name (int_name) = %q, want %q", result, "International")
	}

	// Fallback to name:en
	if err := L.DoString(`result = get_name({["name:en"] = "English Name"})`); err != nil {
		t.Fatalf("failed to call get_name: %v", err)
	}
	if result := L.GetGlobal("result").String(); result != "English Name" {
		t.Errorf("get_name (name:en) = %q, want %q", result, "English Name")
	}
}

func TestTransformGetNameLocalized(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	RegisterTransforms(L)

	if err := L.DoString(`result = pgnode.transforms.get_name_localized({name = "Paris", ["name:de"] = "Paris (DE)"}, "de")`); err != nil {
		t.Fatalf("failed to call get_name_localized: %v", err)
	}
	if result := L.GetGlobal("result").String(); result != "Paris (DE)" {
		t.Errorf("get_name_localized = %q, want %q", result, "Paris (DE)")
	}

	// Fallback to default name
	if err := L.DoString(`result = pgnode.transforms.get_name_localized({name = "Paris"}, "de")`); err != nil {
		t.Fatalf("failed to call get_name_localized: %v", err)
	}
	if result := L.GetGlobal("result").String(); result != "Paris" {
		t.Errorf("get_name_localized fallback = %q, want %q", result, "Paris")
	}
}

func TestTransformTagsToJSON(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	RegisterTransforms(L)

	if err := L.DoString(`result = pgnode.transforms.tags_to_json({name = "Test", amenity = "cafe"})`); err != nil {
		t.Fatalf("failed to call tags_to_json: %v", err)
	}
	result := L.GetGlobal("result").String()
	// Key ordering varies, just check it looks like JSON
	if len(result) < 10 || result[0] != '{' {
		t.Errorf("tags_to_json = %q, want valid JSON", result)
	}
}

func TestTransformFilterTags(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	RegisterTransforms(L)

	if err := L.DoString(`
		tags = {name = "Test", amenity = "cafe", source = "survey"}
		result = pgnode.transforms.filter_tags(tags, {"name", "amenity"})
	`); err != nil {
		t.Fatalf("failed to call filter_tags: %v", err)
	}

	result := L.GetGlobal("result").(*lua.LTable)
	if result.RawGetString("name").String() != "Test" {
		t.Error("filter_tags should keep 'name'")
	}
	if result.RawGetString("amenity").String() != "cafe" {
		t.Error("filter_tags should keep 'amenity'")
	}
	if result.RawGetString("source") != lua.LNil {
		t.Error("filter_tags should remove 'source'")
	}
}
