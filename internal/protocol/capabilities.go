// Package protocol defines the contract between the host process and the
// extension process: capability names, method names, argument and result
// types, and the protocol version.
//
// Every method has a fixed positional argument list. Adding or changing a
// method requires a protocol version bump (see version.go).
package protocol

import "github.com/dshills/extbridge/internal/rpc"

// Capabilities served by the host.
const (
	MainThreadWebviewPanels rpc.Capability = "MainThreadWebviewPanels"
	MainThreadWebviews      rpc.Capability = "MainThreadWebviews"
	MainThreadCustomEditors rpc.Capability = "MainThreadCustomEditors"
	MainThreadCommands      rpc.Capability = "MainThreadCommands"
)

// Capabilities served by the extension process.
const (
	ExtHostExtensionService    rpc.Capability = "ExtHostExtensionService"
	ExtHostCommands            rpc.Capability = "ExtHostCommands"
	ExtHostDocumentsAndEditors rpc.Capability = "ExtHostDocumentsAndEditors"
	ExtHostEditorTabs          rpc.Capability = "ExtHostEditorTabs"
	ExtHostWebviews            rpc.Capability = "ExtHostWebviews"
	ExtHostWebviewPanels       rpc.Capability = "ExtHostWebviewPanels"
	ExtHostCustomEditors       rpc.Capability = "ExtHostCustomEditors"
)

// MainThreadWebviewPanels methods.
const (
	MethodCreateWebviewPanel   = "$createWebviewPanel"
	MethodDisposeWebview       = "$disposeWebview"
	MethodReveal               = "$reveal"
	MethodSetTitle             = "$setTitle"
	MethodSetIconPath          = "$setIconPath"
	MethodRegisterSerializer   = "$registerSerializer"
	MethodUnregisterSerializer = "$unregisterSerializer"
)

// MainThreadWebviews methods.
const (
	MethodSetHTML     = "$setHtml"
	MethodSetOptions  = "$setOptions"
	MethodPostMessage = "$postMessage"
)

// MainThreadCustomEditors methods.
const (
	MethodRegisterTextEditorProvider   = "$registerTextEditorProvider"
	MethodRegisterCustomEditorProvider = "$registerCustomEditorProvider"
	MethodUnregisterEditorProvider     = "$unregisterEditorProvider"
	MethodOnDidEdit                    = "$onDidEdit"
	MethodOnContentChange              = "$onContentChange"
)

// MainThreadCommands methods.
const (
	MethodRegisterCommand   = "$registerCommand"
	MethodUnregisterCommand = "$unregisterCommand"
	MethodExecuteCommand    = "$executeCommand"
	MethodGetCommands       = "$getCommands"
)

// ExtHostExtensionService methods.
const (
	MethodInitialize = "$initialize"
)

// ExtHostCommands methods.
const (
	MethodExecuteContributedCommand     = "$executeContributedCommand"
	MethodGetContributedCommandMetadata = "$getContributedCommandMetadata"
)

// ExtHostDocumentsAndEditors methods.
const (
	MethodAcceptDocumentsAndEditorsDelta = "$acceptDocumentsAndEditorsDelta"
)

// ExtHostEditorTabs methods.
const (
	MethodAcceptEditorTabModel = "$acceptEditorTabModel"
	MethodAcceptTabGroupUpdate = "$acceptTabGroupUpdate"
	MethodAcceptTabOperation   = "$acceptTabOperation"
)

// ExtHostWebviews methods.
const (
	MethodOnMessage    = "$onMessage"
	MethodOnMissingCsp = "$onMissingCsp"
)

// ExtHostWebviewPanels methods.
const (
	MethodOnDidChangeWebviewPanelViewStates = "$onDidChangeWebviewPanelViewStates"
	MethodOnDidDisposeWebviewPanel          = "$onDidDisposeWebviewPanel"
	MethodDeserializeWebviewPanel           = "$deserializeWebviewPanel"
)

// ExtHostCustomEditors methods.
const (
	MethodCreateCustomDocument  = "$createCustomDocument"
	MethodResolveCustomEditor   = "$resolveCustomEditor"
	MethodDisposeCustomDocument = "$disposeCustomDocument"
	MethodUndo                  = "$undo"
	MethodRedo                  = "$redo"
	MethodOnSave                = "$onSave"
)

// UIAffine reports whether a host capability must run on the UI lane.
func UIAffine(c rpc.Capability) bool {
	switch c {
	case MainThreadWebviewPanels, MainThreadWebviews, MainThreadCustomEditors:
		return true
	}
	return false
}
