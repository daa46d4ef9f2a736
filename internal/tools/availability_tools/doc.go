// Package availability_tools provides MCP (Model Context Protocol) tools for
// finding common free time across Google calendars.
//
// find_availability runs the same computation as the HTTP API's
// /availability endpoint and renders the result as text. credential_status
// tells an assistant whether an identity still has to authorize before its
// calendar can be queried.
package availability_tools
