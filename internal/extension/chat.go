package extension

import (
	"context"
	"fmt"

	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
)

// View types and command ids of the chat extension.
const (
	ChatViewType        = "chatgpt.chatView"
	CodexPanelViewType  = "chatgpt.codexPanel"
	CommandNewChat      = "chatgpt.newChat"
	CommandNewCodex     = "chatgpt.newCodexPanel"
	CommandActiveEditor = "chatgpt.activeEditor"
)

const chatHTML = `<!DOCTYPE html>
<html>
<head>
<meta http-equiv="Content-Security-Policy" content="default-src 'none'; script-src 'unsafe-inline'; style-src 'unsafe-inline';">
<title>Codex</title>
</head>
<body><div id="root"></div></body>
</html>`

// ActiveEditorInfo is returned by the chatgpt.activeEditor command.
type ActiveEditorInfo struct {
	Editor     protocol.EditorID    `json:"editor"`
	URI        protocol.URI         `json:"uri"`
	LanguageID string               `json:"languageId"`
	LineCount  int                  `json:"lineCount"`
	Selections []protocol.Selection `json:"selections,omitzero"`
}

// ActivateChat contributes the chat commands and restores chat panels. It
// is the activation hook of the bundled extension process.
func ActivateChat(ctx context.Context, r *Runtime) error {
	commands := []Command{
		{
			ID:       CommandNewChat,
			Metadata: protocol.CommandMetadata{Description: "Create a new thread in Codex", Returns: "panel handle"},
			Run: func(ctx context.Context, _ *rpc.Args) (any, error) {
				return r.newChat(ctx)
			},
		},
		{
			ID:       CommandNewCodex,
			Metadata: protocol.CommandMetadata{Description: "Open a new Codex agent panel", Returns: "panel handle"},
			Run: func(ctx context.Context, args *rpc.Args) (any, error) {
				title := "Codex Agent"
				if args.Len() > 0 {
					if err := args.Decode(0, &title); err != nil {
						return nil, err
					}
				}
				return r.CreatePanel(ctx, CodexPanelViewType, title, chatHTML, protocol.ShowOptions{ViewColumn: protocol.ViewColumnBeside})
			},
		},
		{
			ID:       CommandActiveEditor,
			Metadata: protocol.CommandMetadata{Description: "Describe the active editor", Returns: "editor info or null"},
			Run: func(context.Context, *rpc.Args) (any, error) {
				info, ok := r.activeEditor()
				if !ok {
					return nil, nil
				}
				return info, nil
			},
		},
	}
	for _, c := range commands {
		if err := r.Contribute(ctx, c); err != nil {
			return err
		}
	}

	return r.RegisterSerializer(ctx, ChatViewType, protocol.SerializerOptions{}, func(ctx context.Context, handle protocol.WebviewHandle, init protocol.DeserializeInitData, _ protocol.ViewColumn) error {
		_, err := r.host.Webviews.SetHTML(handle, chatHTML).Await(ctx)
		return err
	})
}

// newChat reuses an open chat panel, asking it to start a new thread, or
// opens one.
func (r *Runtime) newChat(ctx context.Context) (protocol.WebviewHandle, error) {
	for _, p := range r.Panels() {
		if p.ViewType != ChatViewType {
			continue
		}
		if _, err := r.host.Panels.Reveal(p.Handle, protocol.ShowOptions{}).Await(ctx); err != nil {
			return "", err
		}
		if _, err := r.host.Webviews.PostMessage(p.Handle, `{"type":"newChat"}`).Await(ctx); err != nil {
			return "", fmt.Errorf("post to %s: %w", p.Handle, err)
		}
		return p.Handle, nil
	}
	return r.CreatePanel(ctx, ChatViewType, "Codex", chatHTML, protocol.ShowOptions{ViewColumn: protocol.ViewColumnActive})
}

func (r *Runtime) activeEditor() (ActiveEditorInfo, bool) {
	id := r.documents.ActiveEditor()
	if id == "" {
		return ActiveEditorInfo{}, false
	}
	ed, ok := r.documents.Editor(id)
	if !ok {
		return ActiveEditorInfo{}, false
	}
	doc, ok := r.documents.Document(ed.DocumentURI)
	if !ok {
		return ActiveEditorInfo{}, false
	}
	return ActiveEditorInfo{
		Editor:     id,
		URI:        doc.URI,
		LanguageID: doc.LanguageID,
		LineCount:  len(doc.Lines),
		Selections: ed.Selections,
	}, true
}
