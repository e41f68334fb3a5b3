// Package executor invokes remote tools on behalf of the agent loop. Every
// failure mode — unknown tool, argument schema violation, transport fault,
// timeout, backend-reported error, even a panic — is normalized into the
// error variant of a core.FunctionResponse; nothing escapes as a Go error.
// A round's calls may be dispatched concurrently, but results are always
// folded back in the order the model emitted the requests.
package executor
