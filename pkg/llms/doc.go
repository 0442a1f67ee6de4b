// Package llms provides the provider-neutral types used to talk to a language model:
// messages built from text, tool call and tool result parts, tool declarations,
// call options and responses.
//
// Provider implementations live in subpackages; the internal directories within these
// subpackages contain the provider-specific wire mapping.
package llms
