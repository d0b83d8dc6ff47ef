// Package api provides the Lua modules exposed to host scripts.
//
// Each module implements Module and is injected into a state through a
// Registry. The events module binds scripts to an event bus:
//
//	events.register("PLAYER_LOGIN", function(event, name) ... end)
//	events.once("PLAYER_LOGOUT", onLogout)
//	events.unregister("PLAYER_LOGIN", handler)
//	events.unregister_all("PLAYER_LOGIN")
//	local ok, err = events.trigger("MY_ADDON_READY", 1, "two")
//	events.is_registered("PLAYER_LOGIN")
//
// Hooks run after the hooked function or script and either trigger an
// event on the bus or call a function:
//
//	events.hook(unit, "damage")                 -- triggers "damage"
//	events.hook(unit, "heal", "UNIT_HEALED")    -- triggers UNIT_HEALED
//	events.hook_script(frame, "OnShow", fn)     -- calls fn("OnShow", ...)
//
// Hooks are installed once per (target, name) for the whole process; a
// second request returns false.
package api
