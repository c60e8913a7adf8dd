// Package fetcher holds the remote-call plumbing shared by the orchestrators:
// the HTTP client factory, the raw FetchError taxonomy and the classifier
// that maps failures onto user-facing kinds and progress steps.
package fetcher

// Op describes how failures of one long-running operation are reported.
// The step fields index into the operation's progress sequence.
type Op struct {
	Name   string
	Prefix string

	// RequestStep is the step that issues the remote call.
	RequestStep int
	// DataStep is the step blamed for instrument or data complaints.
	DataStep int
	// ReceiveStep is the step that validates the response payload.
	ReceiveStep int

	// BareDetail reports a server detail as is instead of "<status> - <detail>".
	BareDetail bool
}

var (
	// OpHistory is the history fetch: [prepare, request, cache]
	OpHistory = Op{
		Name:        "fetch",
		Prefix:      "history fetch failed: ",
		RequestStep: 1,
		DataStep:    1,
		ReceiveStep: 1,
	}

	// OpAnalysis is the AI analysis: [prepare, extract, request, receive]
	OpAnalysis = Op{
		Name:        "analyze",
		Prefix:      "analysis failed: ",
		RequestStep: 2,
		DataStep:    1,
		ReceiveStep: 3,
		BareDetail:  true,
	}

	// OpConnectionTest is the AI settings connection probe; it has no sequence
	OpConnectionTest = Op{
		Name:        "test_connection",
		Prefix:      "connection test failed: ",
		RequestStep: NoStep,
		DataStep:    NoStep,
		ReceiveStep: NoStep,
	}
)
