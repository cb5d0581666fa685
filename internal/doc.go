// Package internal contains the implementation packages of the postcard CLI.
//
// # Package Organization
//
//   - catalog: preview file discovery and the ordered preview catalog
//   - renderer: MJML compilation with layouts and plain-text conversion
//   - preview: render endpoint semantics and the null-state predicate
//   - livereload: the reload hub, websocket handler and reconnecting subscriber
//   - livesync: the client-side sync state machine
//   - server: HTTP preview UI and JSON API
//   - watcher: debounced recursive filesystem watching
//   - scaffold: interactive project initialization
//   - export, send: static HTML export with S3 upload, Postmark test sends
//   - config, logging, errors, monitoring, validation, analytics, version:
//     ambient support shared by every command
//
// Every request reads from disk. There is no cache to invalidate, so a
// change to a template or preview file is visible on the next render.
package internal
