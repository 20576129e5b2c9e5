package flex

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Filter runs a user-provided Lua script against every node before it
// reaches the database. The script defines pgnode.process_node(object)
// and its return value decides the node's fate: true keeps the node as-is
// and a table with a tags field keeps it with those tags. Returning nil,
// false or nothing at all drops the node.
type Filter struct {
	L           *lua.LState
	srid        int
	processNode lua.LValue
}

// NewFilter creates a Lua filter. The SRID is exposed to scripts as
// pgnode.srid.
func NewFilter(srid int) *Filter {
	f := &Filter{
		L:    lua.NewState(),
		srid: srid,
	}

	f.registerAPI()
	return f
}

// Close releases the Lua state
func (f *Filter) Close() {
	f.L.Close()
}

// registerAPI sets up the pgnode global table
func (f *Filter) registerAPI() {
	L := f.L
	pgnode := L.NewTable()

	pgnode.RawSetString("version", lua.LString("1.0.0"))
	pgnode.RawSetString("srid", lua.LNumber(f.srid))

	L.SetGlobal("pgnode", pgnode)

	RegisterTransforms(L)
}

// LoadFile loads and executes a Lua filter script
func (f *Filter) LoadFile(path string) error {
	if err := f.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to load Lua file: %w", err)
	}

	f.extractCallback()
	return nil
}

// LoadString loads and executes Lua code from a string
func (f *Filter) LoadString(code string) error {
	if err := f.L.DoString(code); err != nil {
		return fmt.Errorf("failed to load Lua code: %w", err)
	}

	f.extractCallback()
	return nil
}

func (f *Filter) extractCallback() {
	pgnode := f.L.GetGlobal("pgnode")
	if pgnode.Type() == lua.LTTable {
		f.processNode = pgnode.(*lua.LTable).RawGetString("process_node")
	}
}

// HasProcessNode reports whether the loaded script defines a
// process_node callback.
func (f *Filter) HasProcessNode() bool {
	return f.processNode != nil && f.processNode.Type() == lua.LTFunction
}

// ProcessNode runs the callback for one node and reports whether the
// node should be kept. Without a callback every node is kept. When the
// script returns a table with a tags field, the object's tags are
// replaced in place before it is kept.
func (f *Filter) ProcessNode(obj *Object) (bool, error) {
	if !f.HasProcessNode() {
		return true, nil
	}

	if err := f.L.CallByParam(lua.P{
		Fn:      f.processNode,
		NRet:    1,
		Protect: true,
	}, f.objectToLua(obj)); err != nil {
		return false, fmt.Errorf("process_node failed: %w", err)
	}

	ret := f.L.Get(-1)
	f.L.Pop(1)

	switch v := ret.(type) {
	case lua.LBool:
		return bool(v), nil
	case *lua.LTable:
		if tags := v.RawGetString("tags"); tags.Type() == lua.LTTable {
			obj.Tags = tableToTags(tags.(*lua.LTable))
		}
		return true, nil
	default:
		return false, nil
	}
}

// objectToLua converts an Object to a Lua table
func (f *Filter) objectToLua(obj *Object) *lua.LTable {
	L := f.L
	tbl := L.NewTable()

	tbl.RawSetString("id", lua.LNumber(obj.ID))
	tbl.RawSetString("version", lua.LNumber(obj.Version))
	tbl.RawSetString("changeset", lua.LNumber(obj.Changeset))
	tbl.RawSetString("uid", lua.LNumber(obj.UID))
	tbl.RawSetString("user", lua.LString(obj.User))
	tbl.RawSetString("lat", lua.LNumber(obj.Lat))
	tbl.RawSetString("lon", lua.LNumber(obj.Lon))

	tags := L.NewTable()
	for k, v := range obj.Tags {
		tags.RawSetString(k, lua.LString(v))
	}
	tbl.RawSetString("tags", tags)

	L.SetField(tbl, "grab_tag", L.NewFunction(f.grabTag(obj)))

	return tbl
}

// grabTag implements object.grab_tag(key): returns the value and
// removes the tag from the object.
func (f *Filter) grabTag(obj *Object) lua.LGFunction {
	return func(L *lua.LState) int {
		var key string
		if L.GetTop() >= 2 {
			// Called as object:grab_tag(key)
			key = L.CheckString(2)
		} else {
			key = L.CheckString(1)
		}

		if val, ok := obj.Tags[key]; ok {
			delete(obj.Tags, key)
			L.Push(lua.LString(val))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}
}

// tableToTags converts a Lua table to a tag map
func tableToTags(tbl *lua.LTable) map[string]string {
	tags := make(map[string]string)
	tbl.ForEach(func(k, v lua.LValue) {
		if key := lua.LVAsString(k); key != "" {
			tags[key] = lua.LVAsString(v)
		}
	})
	return tags
}
