// Package main builds as a Go plugin (-buildmode=plugin) exposing a single
// ",version" command, mirroring the reference Version plugin's shape: one
// command, no arguments, a canned reply.
package main

import (
	"fmt"

	"github.com/kbot/kbot"
)

const pluginName = "version"
const reply = "Beta."

func cmdVersion(s *kbot.Server, invoker kbot.Identity, target string, args []string) {
	s.SendChannel(target, fmt.Sprintf("%s: %s", invoker.Nickname, reply))
}

// RegisterPluginCommands_version is looked up and called by LoadPlugin.
func RegisterPluginCommands_version(s *kbot.Server) error {
	s.AddPluginCommands(pluginName, ":,version", 0, 0, 0, cmdVersion)
	return nil
}

// DeletePluginCommands_version is called before the Server forgets this
// plugin. The Server itself removes the command table entries via
// RemovePluginCommands; this hook exists for plugins that hold their own
// state to tear down.
func DeletePluginCommands_version(s *kbot.Server) {}

// HelpPluginCommands_version answers ",help version".
var HelpPluginCommands_version kbot.CommandFunc = func(s *kbot.Server, invoker kbot.Identity, target string, args []string) {
	s.SendChannel(target, fmt.Sprintf("%s: Usage: ,version", invoker.Nickname))
}
