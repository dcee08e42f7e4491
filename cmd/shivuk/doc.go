// Command shivuk is the command-line front end for brand profiles, the
// content library, and generation sessions.
//
// Data commands load the TOML config, open the document and blob stores, and
// sign in as the configured identity for the duration of the command.
// `catalog` and `config init|validate` skip that setup; `logs` only reads the
// log file.
// `shivuk serve` keeps that state open and exposes it as MCP tools on stdio
// together with the blob retrieval endpoint.
package main
