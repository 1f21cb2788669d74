// Package cli provides the interactive contentup command-line client.
//
// It wires configuration, the local upload journal, the upload service and
// an interactive REPL. A background watcher probes the gRPC health endpoint
// and the prompt shows whether the upload service is online.
//
// Key features:
//   - Checksum and chunk plan of a local file
//   - Upload with concurrent chunks, retries and a progress bar
//   - Resume of interrupted uploads by record ID
//   - Status and list of journaled uploads
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// Ctrl-C during an upload interrupts it and keeps it resumable.
// See App and runREPL for details.
package cli
