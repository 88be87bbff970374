// Package cliargs turns nopg command-line words into RPC payloads.
//
// Flags spelled --where-KEY, --set-KEY and --traits-KEY land in three flat
// mappings. When the command names a document type, the CLI fetches the
// type, derives an ArgSchema from its JSON schema and decodes argv a second
// time so booleans, arrays and strings get their declared shape. Unflatten
// then turns dashed and dotted keys into nested objects.
package cliargs
