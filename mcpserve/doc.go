// Package mcpserve is the runtime half of mcpgen: it serves the tool,
// prompt, and resource definitions the generator assembles from an
// annotated Go package, implementing the Model Context Protocol (MCP) wire
// format from https://spec.modelcontextprotocol.io/specification/.
//
// Generated code builds a definition set and hands it to NewServer together
// with one of the two transports: StdIO for a single persistent session
// over process pipes, or StreamableHTTP for the multi-session addressable
// mode. The package is usable without the generator as well; the
// definition records are plain values.
package mcpserve
