package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flarebyte/geotrail/internal/record"
	lua "github.com/yuin/gopher-lua"
)

const defaultWhereTimeout = 200 * time.Millisecond

// Where is a Lua predicate that selects posts for the map. The code is
// either an expression ("lat > 0 and caption:find('ramen')") or a chunk that
// returns a value; the post is kept when that value is truthy.
//
// Each evaluation runs in a fresh state with only the base, string, table
// and math libraries and these globals: post_url, caption, date, lat, lon,
// images.
type Where struct {
	code    string
	Timeout time.Duration
}

// CompileWhere checks that code parses.
func CompileWhere(code string) (*Where, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("where: empty predicate")
	}
	L := newSandboxState()
	defer L.Close()
	if _, err := L.LoadString("return " + code); err == nil {
		return &Where{code: "return " + code}, nil
	}
	if _, err := L.LoadString(code); err != nil {
		return nil, fmt.Errorf("where: %v", err)
	}
	return &Where{code: code}, nil
}

func newSandboxState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	// base opens these; none belong in a predicate.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// Match evaluates the predicate for one post whose coordinates are known.
func (w *Where) Match(ctx context.Context, p record.Post) (bool, error) {
	L := newSandboxState()
	defer L.Close()

	timeout := w.Timeout
	if timeout <= 0 {
		timeout = defaultWhereTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	L.SetContext(ctx)

	L.SetGlobal("post_url", lua.LString(p.PostURL))
	L.SetGlobal("caption", lua.LString(p.Caption))
	L.SetGlobal("date", lua.LString(p.Date))
	if p.HasCoordinates() {
		L.SetGlobal("lat", lua.LNumber(*p.Location.Lat))
		L.SetGlobal("lon", lua.LNumber(*p.Location.Lon))
	}
	images := L.NewTable()
	for i, img := range p.LocalImagePaths {
		images.RawSetInt(i+1, lua.LString(img))
	}
	L.SetGlobal("images", images)

	fn, err := L.LoadString(w.code)
	if err != nil {
		return false, fmt.Errorf("where: %v", err)
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("where: timeout after %s", timeout)
		}
		return false, fmt.Errorf("where: %v", err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret), nil
}
