// Package cli provides the interactive podesk terminal client.
//
// It wires configuration, the API client, the authenticator and the client
// core (session completion, login approval, data sync) behind a REPL. On
// start the client fetches the server auth status and either resumes the
// session or asks the user to sign in.
//
// Key features:
//   - Passkey registration and sign-in, access-code sign-in
//   - Waiting for and deciding cross-device login approvals
//   - Browsing saved and trashed purchase orders, kept in sync in the background
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
