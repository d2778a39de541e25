// Package logx is keysend-notifier's logging layer on top of zerolog.
//
// Console lines are short (millisecond timestamp, file:line caller). The
// optional file sink keeps JSON. Warn+ lines can also be forwarded to a
// Telegram chat as operator alerts, paced by a token bucket.
package logx
