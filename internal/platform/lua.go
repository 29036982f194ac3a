package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectPlatformTable sets a read-only global "platform" table describing
// info. Call it before running user code.
func InjectPlatformTable(L *lua.LState, info *Info) error {
	t := L.NewTable()

	L.SetField(t, "os", lua.LString(info.OS))
	L.SetField(t, "arch", lua.LString(info.Arch))
	L.SetField(t, "arch_raw", lua.LString(info.ArchRaw))
	L.SetField(t, "kernel", lua.LString(info.Kernel))
	L.SetField(t, "device", lua.LString(info.Device))
	L.SetField(t, "vendor", lua.LString(info.Vendor))
	L.SetField(t, "product", lua.LString(info.Product))

	L.SetField(t, "is_linux", lua.LBool(info.IsLinux()))
	L.SetField(t, "is_amd64", lua.LBool(info.IsAMD64()))
	L.SetField(t, "is_arm64", lua.LBool(info.IsARM64()))
	L.SetField(t, "is_handheld", lua.LBool(info.IsHandheld()))
	L.SetField(t, "is_rog_ally", lua.LBool(info.IsROGAlly()))
	L.SetField(t, "is_steam_deck", lua.LBool(info.IsSteamDeck()))
	L.SetField(t, "is_steamos", lua.LBool(info.IsSteamOS()))
	L.SetField(t, "gamescope", lua.LBool(info.Gamescope))

	if info.IsLinux() && info.Distro != "" {
		distro := L.NewTable()
		L.SetField(distro, "id", lua.LString(info.Distro))
		L.SetField(distro, "family", lua.LString(info.Family))
		L.SetField(distro, "version", lua.LString(info.DistroVersion))
		L.SetField(t, "distro", MakeReadOnly(L, distro, "platform.distro"))
	} else {
		L.SetField(t, "distro", lua.LNil)
	}

	// when(condition, value) returns value if condition holds, else nil
	L.SetField(t, "when", L.NewFunction(func(L *lua.LState) int {
		cond := L.CheckBool(1)
		if cond {
			L.Push(L.Get(2))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}))

	L.SetGlobal("platform", MakeReadOnly(L, t, "platform"))
	return nil
}

// MakeReadOnly returns a proxy for table that rejects every write.
func MakeReadOnly(L *lua.LState, table *lua.LTable, name string) *lua.LTable {
	mt := L.NewTable()
	L.SetField(mt, "__index", table)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("%s table is read-only and cannot be modified", name)
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LString("protected"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
