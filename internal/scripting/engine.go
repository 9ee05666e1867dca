package scripting

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/douyudm/dmclient/internal/danmaku"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

const hookName = "on_danmaku"

// callTimeout bounds one hook invocation so a runaway script cannot stall
// the receive loop.
const callTimeout = 200 * time.Millisecond

// Verdict is what a script decided for one event.
type Verdict int

const (
	Default Verdict = iota // no opinion, use built-in formatting
	Replace                // print Result.Line instead
	Drop                   // print nothing
)

type Result struct {
	Verdict Verdict
	Line    string
}

// Engine wraps a single gopher-lua VM running user hooks. Calls are
// serialized; the VM is never touched concurrently.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads every .lua file in scriptsDir in
// name order. A missing directory yields an engine with no hooks.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	vm.SetGlobal("dm_log", vm.NewFunction(e.luaLog))

	if scriptsDir != "" {
		if err := e.loadDir(scriptsDir); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load scripts: %w", err)
		}
	}
	return e, nil
}

// LoadString runs a chunk of Lua source, typically to define hooks in tests.
func (e *Engine) LoadString(src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vm.DoString(src)
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
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

// HasHook reports whether on_danmaku is defined.
func (e *Engine) HasHook() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vm.GetGlobal(hookName).Type() == lua.LTFunction
}

// Format calls on_danmaku(event). The event is passed as a table of its
// JSON fields plus `type`. The hook may return a string (replace), false
// (drop) or nil/true (default). Script errors are logged and yield Default.
func (e *Engine) Format(ev danmaku.Event) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal(hookName)
	if fn.Type() != lua.LTFunction {
		return Result{}
	}

	t, err := e.eventTable(ev)
	if err != nil {
		e.log.Error("事件轉換失敗", zap.Stringer("type", ev.Type()), zap.Error(err))
		return Result{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	e.vm.SetContext(ctx)
	defer e.vm.RemoveContext()

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua on_danmaku error", zap.Error(err))
		return Result{}
	}

	ret := e.vm.Get(-1)
	e.vm.Pop(1)
	switch v := ret.(type) {
	case lua.LString:
		return Result{Verdict: Replace, Line: string(v)}
	case lua.LBool:
		if !bool(v) {
			return Result{Verdict: Drop}
		}
	}
	return Result{}
}

func (e *Engine) eventTable(ev danmaku.Event) (*lua.LTable, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	t := toLua(e.vm, fields).(*lua.LTable)
	t.RawSetString("type", lua.LString(ev.Type().String()))
	return t, nil
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case []any:
		t := L.NewTable()
		for _, item := range x {
			t.Append(toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range x {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

// luaLog implements dm_log(msg) for scripts.
func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info("lua", zap.String("msg", L.CheckString(1)))
	return 0
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}
