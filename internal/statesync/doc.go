// Package statesync keeps the extension's view of host state current by
// sending deltas instead of snapshots.
//
// Documents holds the open documents and editors. Every mutation, or every
// Batch of mutations, is compared with the state last sent and the
// difference goes out as one DocumentsAndEditorsDelta. Tabs holds the tab
// model and sends an ordered list of primitive operations whose literal
// replay turns the previous model into the new one.
//
// The mirrors are the receiving side. They apply what the senders emit and
// reject input that does not match their state, which is how a lost or
// reordered message shows up.
package statesync
