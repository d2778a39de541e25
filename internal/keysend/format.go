package keysend

import (
	"fmt"
	"strings"
)

const nodeURLPrefix = "https://amboss.space/node/"

// Format renders the notification text. name is shown as the link label of
// the attribution line; callers pass the resolved alias or the raw pubkey.
// The message is inserted verbatim.
func Format(p Payload, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Keysend message received!\n\nAt %s:\n\n**%s**", p.ResolvedAt, p.Message)
	if p.SenderPubkey != "" {
		if name == "" {
			name = p.SenderPubkey
		}
		fmt.Fprintf(&b, "\n\nFrom node [%s](%s%s)", name, nodeURLPrefix, p.SenderPubkey)
	}
	return b.String()
}
