// Command orgdex indexes exported org activity archives (Slack, Calendar,
// Drive, employee records) into a local SQLite database and answers
// full-text queries over them, from the command line or as an MCP stdio
// server. All data stays on the local machine.
package main

func main() {
	Execute()
}
