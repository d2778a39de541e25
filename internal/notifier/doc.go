// Package notifier delivers formatted notifications.
//
// A Service sends each notification synchronously to one primary Sink (the
// nostr direct messenger) and then to any mirror sinks such as a Telegram
// chat. Only the primary result decides success; mirror failures are logged.
//
// # History
//
// For debugging and operator visibility, the service keeps a small in-memory
// history of recently delivered notifications.
package notifier
