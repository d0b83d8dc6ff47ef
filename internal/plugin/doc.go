// Package plugin hosts Lua scripts as a native event environment.
//
// A Host owns a Lua state, a set of declared native events and the frames
// scripts create. It implements source.Source, so a bus built on it is
// bound to exactly the events it has handlers for:
//
//	host, err := plugin.NewHost(
//	    plugin.WithEvents("PLAYER_LOGIN", "PLAYER_LOGOUT"),
//	    plugin.WithStrict(true),
//	)
//	if err != nil {
//	    return err
//	}
//	defer host.Close()
//
//	bus := event.New(event.WithSource(host))
//	if err := host.Install(api.NewEventModule(bus)); err != nil {
//	    return err
//	}
//
// # Frames
//
// Frames are created from Lua with CreateFrame(name, scripts) or from Go
// with Host.CreateFrame. A frame carries the lifecycle scripts OnLoad,
// OnShow, OnHide and OnEvent:
//
//	local f = CreateFrame("Watcher")
//	f:RegisterEvent("PLAYER_LOGIN")
//	f:SetScript("OnEvent", function(self, event, name) print(event, name) end)
//	f:HookScript("OnShow", function(self) print("shown") end)
//
// # Firing Events
//
// host.fire(name, ...) (or Host.Fire from Go) delivers to registered
// frames first, then to the bus.
package plugin
