package core

// ToolCallRecord captures one executed tool call for the QueryResult
// metadata. Result holds a rendered (possibly truncated) form of the
// outcome; the full payload only ever lives in the transcript.
type ToolCallRecord struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Result string         `json:"result"`
}

// QueryMetadata describes how a query was answered: the ordered tool calls
// that were executed and the number of model rounds consumed.
type QueryMetadata struct {
	QueryID    string           `json:"query_id,omitempty"`
	ToolCalls  []ToolCallRecord `json:"tool_calls"`
	Iterations int              `json:"iterations"`
}

// QueryResult is the terminal outcome of one agent query.
//
// On success Answer holds the model's final text. On failure Err carries the
// typed error (errors.Is / errors.As friendly) and Error its rendered form
// for serialization. Metadata is populated in both cases.
type QueryResult struct {
	Success  bool          `json:"success"`
	Answer   string        `json:"answer,omitempty"`
	Error    string        `json:"error,omitempty"`
	Metadata QueryMetadata `json:"metadata"`

	// Err is the typed failure cause, nil on success. Excluded from JSON;
	// use Error for the serialized form.
	Err error `json:"-"`
}
