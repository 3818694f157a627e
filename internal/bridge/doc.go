// Package bridge is the thin dispatcher between Matrix and the sydney
// session client.
//
// It maps each Matrix sender to one ConversationSession, forwards message
// text, relays throttled progress snapshots as message edits, and handles
// the reset command. Everything protocol-related lives in package sydney;
// the bridge only moves text and renders results.
package bridge
