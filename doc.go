// Package account implements self-service account management: sign up,
// sign in, password update and recovery, email confirmation, phone
// activation through one-time codes, profile edits and avatar upload.
//
// Operations:
//   - Every operation is a go-command message with its own handler. The
//     Service facade builds the handlers from one Store and a set of
//     collaborators (TokenService, OtpService, Notifier, AvatarStorage)
//     and exposes one method per message. Service.Subscribe registers the
//     same handlers on the go-command dispatcher.
//   - Input problems surface as *ValidationError, a field to message map
//     that converts to a go-errors rich error for transport layers.
//
// Side effects:
//   - Mails are submitted to a TaskQueue after the state change they
//     describe is persisted. Dispatcher is the bounded worker pool used
//     in production; the default queue hands each task to its own goroutine.
//   - ActivitySink receives audit events. Sinks run best-effort, errors
//     are logged and never fail the operation.
//
// Persistence:
//   - BunStore persists accounts through bun and go-repository-bun and
//     applies partial updates, so concurrent edits of unrelated columns
//     do not overwrite each other. Guarded updates (AccountPatch.Where)
//     make token redemption single use.
//
// HTTP:
//   - HTTPController mounts the operations on a fiber router and maps
//     go-errors categories to status codes.
package account
