// Package core defines the shared conversation data model used by the agent
// loop: role-based message content with polymorphic parts (text, function
// calls, function responses) plus the QueryResult surface returned to
// callers. Everything here is a plain value type; instances appended to a
// query transcript should be treated as immutable.
package core
