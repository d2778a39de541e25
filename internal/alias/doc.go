// Package alias resolves lightning node pubkeys to their public aliases.
//
// Resolved aliases are kept in a process-lifetime Cache. Failed lookups are
// never cached, so a later event for the same node retries the directory.
package alias
