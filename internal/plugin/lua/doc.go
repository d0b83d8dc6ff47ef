// Package lua provides the Lua runtime used by the script host.
//
// # State
//
// State owns a gopher-lua interpreter with the base, table, string and
// math libraries. Loaders that reach the filesystem (dofile, loadfile,
// require) are removed, and print writes to the configured zap logger.
//
//	state, err := lua.NewState(lua.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer state.Close()
//
//	if err := state.DoFile("addon.lua"); err != nil {
//	    return err
//	}
//
// # Bridge
//
// Bridge converts event arguments between Go and Lua:
//
//	bridge := lua.NewBridge(state.LuaState())
//	results, err := bridge.CallFunc(fn, "PLAYER_LOGIN", "arthas")
package lua
