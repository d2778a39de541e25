// Package keysend turns settled invoice updates into chat notifications.
//
// A keysend payment may carry a chat message in custom record 34349334 and the
// sender's node pubkey in custom record 34349339. SelectHTLC picks the HTLC that
// carries the message, Extract decodes it into a Payload, and Format renders the
// text that is delivered to the recipient.
package keysend
