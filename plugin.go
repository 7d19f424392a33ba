package kbot

import (
	"fmt"
	"plugin"
)

// PluginHandle owns one loaded dynamic command module. Dropping it — after
// calling Delete — is supposed to unload the module; Go's stdlib plugin
// package has no unload operation (no dlclose equivalent), so the .so
// stays mapped for the process lifetime regardless. This is an explicit,
// unavoidable divergence from the host contract and is noted in DESIGN.md.
// PluginHandle itself does not enforce any call order; cmdUnload calls
// Delete and Server.RemovePluginCommands before it discards the handle.
type PluginHandle struct {
	name       string
	lib        *plugin.Plugin
	registerFn func(*Server) error
	deleteFn   func(*Server)
	helpFn     CommandFunc
}

// LoadPlugin opens ./lib<name>.so relative to the process working
// directory and resolves its three well-known entry points.
func LoadPlugin(name string) (*PluginHandle, error) {
	path := fmt.Sprintf("./lib%s.so", name)
	lib, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPluginLoad, path, err)
	}

	registerSym, err := lib.Lookup("RegisterPluginCommands_" + name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPluginLoad, name, err)
	}
	registerFn, ok := registerSym.(func(*Server) error)
	if !ok {
		return nil, fmt.Errorf("%w: %s: register entry point has the wrong signature", ErrPluginLoad, name)
	}

	deleteSym, err := lib.Lookup("DeletePluginCommands_" + name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPluginLoad, name, err)
	}
	deleteFn, ok := deleteSym.(func(*Server))
	if !ok {
		return nil, fmt.Errorf("%w: %s: delete entry point has the wrong signature", ErrPluginLoad, name)
	}

	helpSym, err := lib.Lookup("HelpPluginCommands_" + name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPluginLoad, name, err)
	}
	helpFn, err := resolveHelp(helpSym)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPluginLoad, name, err)
	}

	return &PluginHandle{name: name, lib: lib, registerFn: registerFn, deleteFn: deleteFn, helpFn: helpFn}, nil
}

// resolveHelp extracts a CommandFunc from a looked-up symbol.
// HelpPluginCommands_<name> is a package-level variable, not a function
// (see plugins/version/main.go), and plugin.Lookup of a variable symbol
// returns a pointer to it (*CommandFunc), not the value itself — per the
// plugin package's documented "*v.(*T)" pattern. A plain func(*Server,
// Identity, string, []string) literal, which would Lookup as CommandFunc
// directly, is also accepted for plugins that export Help that way.
func resolveHelp(sym plugin.Symbol) (CommandFunc, error) {
	if fn, ok := sym.(CommandFunc); ok {
		return fn, nil
	}
	if fn, ok := sym.(func(*Server, Identity, string, []string)); ok {
		return fn, nil
	}
	if ptr, ok := sym.(*CommandFunc); ok {
		return *ptr, nil
	}
	return nil, fmt.Errorf("help entry point has the wrong signature")
}

// Register calls the plugin's register entry point, handing it the Server
// so it can call back into AddPluginCommands.
func (h *PluginHandle) Register(s *Server) error {
	if err := h.registerFn(s); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPluginLoad, h.name, err)
	}
	return nil
}

// Delete calls the plugin's delete entry point. The caller is still
// responsible for calling Server.RemovePluginCommands afterward — the
// plugin is only trusted to drop its own bookkeeping, not the Server's.
func (h *PluginHandle) Delete(s *Server) {
	h.deleteFn(s)
}

// Help delegates a ",help <plugin>" invocation to the plugin's help entry
// point.
func (h *PluginHandle) Help(s *Server, invoker Identity, target string, args []string) {
	h.helpFn(s, invoker, target, args)
}
