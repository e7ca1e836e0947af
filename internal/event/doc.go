// Package event provides typed publish/subscribe topics for bridge
// notifications.
//
// Each event type has its own Topic. Subscribers register and unregister
// explicitly; a subscriber that panics is logged and stays subscribed.
//
// # Delivery Modes
//
//   - Sync: the handler runs on the publisher's goroutine, in subscription
//     order. Use it for state that later handlers or the publisher depend on.
//   - Async: the handler runs on a goroutine owned by the subscription. Events
//     are delivered in publish order and the publisher never blocks.
//
// # Bridge Topics
//
// Bus groups the topics published by the host session:
//
//	panels     - PanelCreated, PanelUpdated, PanelDisposed, SerializerChanged
//	webviews   - WebviewMessage, WebviewContentChanged
//	editors    - EditorProviderChanged, CustomDocumentEdited
//	commands   - CommandsChanged
//	state sync - DocumentsSynced, TabsSynced
//	connection - ConnectionChanged
package event
