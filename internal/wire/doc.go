// Package wire implements the chathub frame codec: record-separator-delimited
// JSON frames and the message shapes exchanged with the backend.
package wire
