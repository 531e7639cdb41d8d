package model

// AppError is the error payload returned by every endpoint of the gateway.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage"`

	DeviceID string `json:"device_id,omitempty"`
	Source   string `json:"source,omitempty"`  // file or upstream URL the error relates to
	Snippet  string `json:"snippet,omitempty"` // <= 200 chars
	Hint     string `json:"hint,omitempty"`
}

type ErrorResponse struct {
	Error AppError `json:"error"`
}
