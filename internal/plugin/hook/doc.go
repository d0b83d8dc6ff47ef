// Package hook installs post-hooks on Lua functions and frame lifecycle
// scripts.
//
// A hook is installed at most once per (target, name) pair for the whole
// process, no matter how many buses or callers request it; installing the
// same hook twice would run it twice. Targets are tracked through weak
// pointers, so a hooked table or frame can still be collected.
//
// Hook handlers always run fault-isolated: a failing handler is reported
// to the registry's error sink and never disturbs the hooked call.
//
//	installed, err := hook.Default().HookFunction(L, tbl, "OnUpdate", h)
package hook
