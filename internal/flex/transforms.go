package flex

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Tag transform helper functions for Lua filter scripts

var whitespaceRegex = regexp.MustCompile(`\s+`)

// RegisterTransforms registers all tag transform functions in the Lua state
func RegisterTransforms(L *lua.LState) {
	transforms := L.NewTable()

	// String transforms
	L.SetField(transforms, "trim", L.NewFunction(luaTrim))
	L.SetField(transforms, "lower", L.NewFunction(luaLower))
	L.SetField(transforms, "upper", L.NewFunction(luaUpper))
	L.SetField(transforms, "clean_spaces", L.NewFunction(luaCleanSpaces))
	L.SetField(transforms, "truncate", L.NewFunction(luaTruncate))

	// Type parsing
	L.SetField(transforms, "parse_int", L.NewFunction(luaParseInt))
	L.SetField(transforms, "parse_real", L.NewFunction(luaParseReal))
	L.SetField(transforms, "parse_bool", L.NewFunction(luaParseBool))

	// Name handling
	L.SetField(transforms, "get_name", L.NewFunction(luaGetName))
	L.SetField(transforms, "get_name_localized", L.NewFunction(luaGetNameLocalized))

	// Tag formatting
	L.SetField(transforms, "tags_to_json", L.NewFunction(luaTagsToJSON))
	L.SetField(transforms, "filter_tags", L.NewFunction(luaFilterTags))

	// Register under pgnode
	pgnode := L.GetGlobal("pgnode")
	if pgnode == lua.LNil {
		pgnode = L.NewTable()
		L.SetGlobal("pgnode", pgnode)
	}
	L.SetField(pgnode.(*lua.LTable), "transforms", transforms)

	// Also register common functions at top level for convenience
	L.SetGlobal("trim", L.NewFunction(luaTrim))
	L.SetGlobal("parse_int", L.NewFunction(luaParseInt))
	L.SetGlobal("parse_bool", L.NewFunction(luaParseBool))
	L.SetGlobal("get_name", L.NewFunction(luaGetName))
}

// luaTrim trims whitespace from a string
func luaTrim(L *lua.LState) int {
	s := L.CheckString(1)
	L.Push(lua.LString(strings.TrimSpace(s)))
	return 1
}

// luaLower converts string to lowercase
func luaLower(L *lua.LState) int {
	s := L.CheckString(1)
	L.Push(lua.LString(strings.ToLower(s)))
	return 1
}

// luaUpper converts string to uppercase
func luaUpper(L *lua.LState) int {
	s := L.CheckString(1)
	L.Push(lua.LString(strings.ToUpper(s)))
	return 1
}

// luaCleanSpaces normalizes whitespace (collapse multiple spaces, trim)
func luaCleanSpaces(L *lua.LState) int {
	s := L.CheckString(1)
	cleaned := whitespaceRegex.ReplaceAllString(s, " ")
	cleaned = strings.TrimSpace(cleaned)
	L.Push(lua.LString(cleaned))
	return 1
}

// luaTruncate truncates string to max length
func luaTruncate(L *lua.LState) int {
	s := L.CheckString(1)
	maxLen := L.CheckInt(2)

	runes := []rune(s)
	if len(runes) <= maxLen {
		L.Push(lua.LString(s))
	} else {
		L.Push(lua.LString(string(runes[:maxLen])))
	}
	return 1
}

// luaParseInt parses string to integer with optional default
func luaParseInt(L *lua.LState) int {
	s := L.CheckString(1)
	defaultVal := int64(0)
	if L.GetTop() >= 2 {
		defaultVal = L.CheckInt64(2)
	}

	s = strings.TrimSpace(s)
	if val, err := strconv.ParseInt(s, 10, 64); err == nil {
		L.Push(lua.LNumber(val))
	} else {
		// Try parsing as float and truncate
		if fval, err := strconv.ParseFloat(s, 64); err == nil {
			L.Push(lua.LNumber(int64(fval)))
		} else {
			L.Push(lua.LNumber(defaultVal))
		}
	}
	return 1
}

// luaParseReal parses string to float with optional default
func luaParseReal(L *lua.LState) int {
	s := L.CheckString(1)
	defaultVal := float64(0)
	if L.GetTop() >= 2 {
		defaultVal = float64(L.CheckNumber(2))
	}

	s = strings.TrimSpace(s)
	if val, err := strconv.ParseFloat(s, 64); err == nil {
		L.Push(lua.LNumber(val))
	} else {
		L.Push(lua.LNumber(defaultVal))
	}
	return 1
}

// luaParseBool parses various boolean representations
func luaParseBool(L *lua.LState) int {
	s := L.CheckString(1)
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "yes", "true", "1", "on":
		L.Push(lua.LTrue)
	case "no", "false", "0", "off", "":
		L.Push(lua.LFalse)
	default:
		// Any other non-empty value usually means true in OSM
		if s != "" {
			L.Push(lua.LTrue)
		} else {
			L.Push(lua.LFalse)
		}
	}
	return 1
}

// luaGetName gets the best name from tags
// Priority: name, then int_name, then name:en
func luaGetName(L *lua.LState) int {
	tags := L.CheckTable(1)

	for _, key := range []string{"name", "int_name", "name:en"} {
		if name := L.GetField(tags, key); name != lua.LNil {
			if s := lua.LVAsString(name); s != "" {
				L.Push(lua.LString(s))
				return 1
			}
		}
	}

	L.Push(lua.LNil)
	return 1
}

// luaGetNameLocalized gets name in specific language with fallback
// Usage: get_name_localized(tags, "de") -> name:de or name
func luaGetNameLocalized(L *lua.LState) int {
	tags := L.CheckTable(1)
	lang := L.CheckString(2)

	localKey := "name:" + lang
	if name := L.GetField(tags, localKey); name != lua.LNil {
		if s := lua.LVAsString(name); s != "" {
			L.Push(lua.LString(s))
			return 1
		}
	}

	// Fallback to default name
	if name := L.GetField(tags, "name"); name != lua.LNil {
		if s := lua.LVAsString(name); s != "" {
			L.Push(lua.LString(s))
			return 1
		}
	}

	L.Push(lua.LNil)
	return 1
}

// luaTagsToJSON converts tags table to JSON string
func luaTagsToJSON(L *lua.LState) int {
	tags := L.CheckTable(1)

	m := make(map[string]string)
	tags.ForEach(func(k, v lua.LValue) {
		key := lua.LVAsString(k)
		val := lua.LVAsString(v)
		if key != "" {
			m[key] = val
		}
	})

	jsonBytes, err := json.Marshal(m)
	if err != nil {
		L.Push(lua.LString("{}"))
	} else {
		L.Push(lua.LString(string(jsonBytes)))
	}
	return 1
}

// luaFilterTags filters tags keeping only specified keys
// Usage: filter_tags(tags, {"name", "amenity", "shop"})
func luaFilterTags(L *lua.LState) int {
	tags := L.CheckTable(1)
	keepKeys := L.CheckTable(2)

	keep := make(map[string]bool)
	keepKeys.ForEach(func(_, v lua.LValue) {
		if s := lua.LVAsString(v); s != "" {
			keep[s] = true
		}
	})

	result := L.NewTable()
	tags.ForEach(func(k, v lua.LValue) {
		key := lua.LVAsString(k)
		if keep[key] {
			L.SetField(result, key, v)
		}
	})

	L.Push(result)
	return 1
}
