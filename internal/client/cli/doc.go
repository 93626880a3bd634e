// Package cli provides the interactive command-line client.
//
// It wires configuration, the SQLite token database, the token store, the
// API client and the auth service, then runs a REPL until the user exits.
// A saved session is restored on start; when a token refresh fails the
// session-expired hook prints a notice and the REPL falls back to the
// logged-out command set.
//
// Commands: register, login, logout, profile, avatar <path>, status, help,
// exit. See runREPL.
package cli
