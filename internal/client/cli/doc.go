// Package cli is the interactive ticketdesk client.
//
// App is the top-level router. Every navigation goes through the route
// guard, and nothing is decided before the session has finished
// initializing. The router subscribes to the transport's 401 events and
// sends the user to /login after the command that caused one.
//
// Screens map to REPL commands: login, register, verify/resend,
// forgot/confirm for password reset, onboard, and company on the
// dashboard. A background watcher pings the backend and shows
// online/offline in the prompt.
package cli
