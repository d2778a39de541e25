// Package nostrdm delivers notifications as NIP-04 encrypted direct messages
// and manages the service identity key.
package nostrdm
