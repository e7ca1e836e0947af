package protocol

// ExtensionDescription is the static metadata of the extension the host runs.
type ExtensionDescription struct {
	ID                    string            `json:"id"`
	CodeDir               string            `json:"codeDir"`
	DisplayName           string            `json:"displayName"`
	Description           string            `json:"description"`
	Publisher             string            `json:"publisher"`
	Version               string            `json:"version"`
	Main                  string            `json:"main"`
	ActivationEvents      []string          `json:"activationEvents"`
	Engines               map[string]string `json:"engines,omitzero"`
	Capabilities          map[string]any    `json:"capabilities,omitzero"`
	ExtensionDependencies []string          `json:"extensionDependencies,omitzero"`
}

// InitData is sent with $initialize once the connection is up.
type InitData struct {
	ProtocolVersion string               `json:"protocolVersion"`
	HostVersion     string               `json:"hostVersion"`
	Extension       ExtensionDescription `json:"extension"`
}

// InitResult is returned by $initialize.
type InitResult struct {
	ProtocolVersion string   `json:"protocolVersion"`
	Activated       bool     `json:"activated"`
	Commands        []string `json:"commands,omitzero"`
}

// CommandArgument documents one argument of a contributed command.
type CommandArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitzero"`
}

// CommandMetadata describes a command contributed by the extension.
type CommandMetadata struct {
	Description string            `json:"description"`
	Args        []CommandArgument `json:"args,omitzero"`
	Returns     string            `json:"returns,omitzero"`
}
