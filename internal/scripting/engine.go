package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/l1jgo/ecsid/internal/core/ecs"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

const entityTypeName = "ecs.entity"

// Engine wraps a single gopher-lua VM that drives a World from scenario
// scripts. Single-goroutine access only.
type Engine struct {
	vm    *lua.LState
	world *ecs.World
	log   *zap.Logger
}

// NewEngine creates a Lua engine with the ecs module bound to w.
func NewEngine(w *ecs.World, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, world: w, log: log}
	e.registerEntityType()
	e.registerModule()
	return e
}

// LoadDir loads all .lua files in a directory, in name order. A missing
// directory is not an error.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// RunFile executes a scenario file.
func (e *Engine) RunFile(path string) error {
	if err := e.vm.DoFile(path); err != nil {
		return fmt.Errorf("run %s: %w", path, err)
	}
	e.log.Debug("ran lua script", zap.String("file", path))
	return nil
}

// RunString executes a chunk of Lua source.
func (e *Engine) RunString(src string) error {
	if err := e.vm.DoString(src); err != nil {
		return fmt.Errorf("run lua chunk: %w", err)
	}
	return nil
}

// HasFunction reports whether a global function with the given name exists.
func (e *Engine) HasFunction(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// Run calls the global Lua function name without arguments.
func (e *Engine) Run(name string) error {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return fmt.Errorf("lua function %s not found", name)
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}); err != nil {
		e.log.Error("lua call error", zap.String("func", name), zap.Error(err))
		return fmt.Errorf("call %s: %w", name, err)
	}
	return nil
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// --- entity userdata ---

func (e *Engine) registerEntityType() {
	mt := e.vm.NewTypeMetatable(entityTypeName)
	mt.RawSetString("__index", e.vm.NewFunction(entityIndex))
	mt.RawSetString("__tostring", e.vm.NewFunction(entityToString))
	mt.RawSetString("__eq", e.vm.NewFunction(entityEqual))
}

func (e *Engine) pushEntity(L *lua.LState, id ecs.EntityID) {
	ud := L.NewUserData()
	ud.Value = id
	L.SetMetatable(ud, L.GetTypeMetatable(entityTypeName))
	L.Push(ud)
}

func checkEntity(L *lua.LState, n int) ecs.EntityID {
	ud := L.CheckUserData(n)
	id, ok := ud.Value.(ecs.EntityID)
	if !ok {
		L.ArgError(n, "entity expected")
	}
	return id
}

func entityIndex(L *lua.LState) int {
	id := checkEntity(L, 1)
	switch L.CheckString(2) {
	case "index":
		L.Push(lua.LNumber(id.Index()))
	case "generation":
		L.Push(lua.LNumber(id.Generation()))
	case "placeholder":
		L.Push(lua.LBool(id.IsPlaceholder()))
	default:
		L.Push(lua.LNil)
	}
	return 1
}

func entityToString(L *lua.LState) int {
	L.Push(lua.LString(checkEntity(L, 1).String()))
	return 1
}

func entityEqual(L *lua.LState) int {
	L.Push(lua.LBool(checkEntity(L, 1) == checkEntity(L, 2)))
	return 1
}

// --- ecs module ---

func (e *Engine) registerModule() {
	mod := e.vm.SetFuncs(e.vm.NewTable(), map[string]lua.LGFunction{
		"spawn":      e.luaSpawn,
		"spawn_many": e.luaSpawnMany,
		"despawn":    e.luaDespawn,
		"free":       e.luaFree,
		"flush":      e.luaFlush,
		"alive":      e.luaAlive,
		"entity":     e.luaEntity,
		"stats":      e.luaStats,
		"log":        e.luaLog,
	})
	mod.RawSetString("PLACEHOLDER", e.entityValue(ecs.Placeholder))
	e.vm.SetGlobal("ecs", mod)
}

func (e *Engine) entityValue(id ecs.EntityID) *lua.LUserData {
	ud := e.vm.NewUserData()
	ud.Value = id
	e.vm.SetMetatable(ud, e.vm.GetTypeMetatable(entityTypeName))
	return ud
}

// ecs.spawn() -> entity
func (e *Engine) luaSpawn(L *lua.LState) int {
	id, err := e.world.CreateEntity()
	if err != nil {
		L.RaiseError("spawn: %v", err)
		return 0
	}
	e.pushEntity(L, id)
	return 1
}

// ecs.spawn_many(n) -> {entity...}
func (e *Engine) luaSpawnMany(L *lua.LState) int {
	n := L.CheckInt(1)
	ids, err := e.world.CreateEntities(n)
	if err != nil {
		L.RaiseError("spawn_many(%d): %v", n, err)
		return 0
	}
	t := L.CreateTable(len(ids), 0)
	for _, id := range ids {
		ud := L.NewUserData()
		ud.Value = id
		L.SetMetatable(ud, L.GetTypeMetatable(entityTypeName))
		t.Append(ud)
	}
	L.Push(t)
	return 1
}

// ecs.despawn(e) queues e for the next flush.
func (e *Engine) luaDespawn(L *lua.LState) int {
	e.world.MarkForDestruction(checkEntity(L, 1))
	return 0
}

// ecs.free(e) -> true | false, reason
func (e *Engine) luaFree(L *lua.LState) int {
	id := checkEntity(L, 1)
	skip := uint32(L.OptInt(2, 0))

	alloc, release := e.world.EntityAllocatorMut()
	err := alloc.FreeSkipping(id, skip)
	release()
	if err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	e.world.Registry().RemoveAll(id)
	L.Push(lua.LTrue)
	return 1
}

// ecs.flush() -> freed, rejected
func (e *Engine) luaFlush(L *lua.LState) int {
	res := e.world.FlushDestroyQueue()
	for _, err := range res.Rejected {
		e.log.Debug("despawn rejected", zap.Error(err))
	}
	L.Push(lua.LNumber(len(res.Freed)))
	L.Push(lua.LNumber(len(res.Rejected)))
	return 2
}

// ecs.alive(e) -> bool
func (e *Engine) luaAlive(L *lua.LState) int {
	L.Push(lua.LBool(e.world.Alive(checkEntity(L, 1))))
	return 1
}

// ecs.entity(index) -> current handle for index, or nil
func (e *Engine) luaEntity(L *lua.LState) int {
	index := L.CheckInt64(1)
	if index < 0 || index > int64(ecs.PlaceholderIndex) {
		L.ArgError(1, "index out of range")
		return 0
	}
	id, ok := e.world.EntityAllocator().Resolve(uint32(index))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	e.pushEntity(L, id)
	return 1
}

// ecs.stats() -> table
func (e *Engine) luaStats(L *lua.LState) int {
	alloc, release := e.world.EntityAllocatorMut()
	st := alloc.Stats()
	release()

	t := L.NewTable()
	t.RawSetString("total_indices", lua.LNumber(st.TotalIndices))
	t.RawSetString("live", lua.LNumber(st.Live))
	t.RawSetString("free", lua.LNumber(st.Free))
	t.RawSetString("retired", lua.LNumber(st.Retired))
	t.RawSetString("meta_capacity", lua.LNumber(st.MetaCapacity))
	t.RawSetString("frees", lua.LNumber(st.Frees))
	t.RawSetString("rejected", lua.LNumber(st.Rejected))
	t.RawSetString("pending", lua.LNumber(e.world.PendingDestruction()))
	L.Push(t)
	return 1
}

// ecs.log(msg)
func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info(L.CheckString(1), zap.String("source", "lua"))
	return 0
}
