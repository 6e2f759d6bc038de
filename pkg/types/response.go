package types

// ErrorBody is the public error payload.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// SuccessBody wraps endpoints that acknowledge a mutation alongside the
// resource they produced.
type SuccessBody struct {
	Success bool `json:"success"`
}
