package models

// These structs define the JSON payloads exchanged with the hosted endpoints
// and the conversion workflow.

// GreetingResponse is the body returned by the greeting function.
type GreetingResponse struct {
	Message string `json:"message"`
	Time    string `json:"time"`
	Status  string `json:"status"`
}

// WorkflowArgument is the argument passed to the conversion workflow
// execution by the intake function. The workflow (and the worker behind it)
// owns everything that happens to the job afterwards.
type WorkflowArgument struct {
	JobID     string `json:"jobId"`
	Bucket    string `json:"bucket"`
	Object    string `json:"object"`
	PageCount int    `json:"pageCount"`
}
