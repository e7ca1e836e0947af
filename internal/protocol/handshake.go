package protocol

import (
	"github.com/hashicorp/go-plugin"
)

// PluginName is the go-plugin name under which the extension process serves
// its bridge endpoint.
const PluginName = "exthost"

// Handshake is the go-plugin handshake between the host and the extension
// process. go-plugin compares ProtocolVersion exactly, so it carries only the
// major version; the full version is checked by $initialize.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  uint(CurrentVersion().Major),
	MagicCookieKey:   "EXTBRIDGE_PLUGIN",
	MagicCookieValue: "extension_host_bridge",
}
