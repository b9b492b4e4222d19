package types

type SuccessEnvelope struct {
	Data    any      `json:"data"`
	Notices []Notice `json:"notices,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Notice is a non-blocking, user-visible signal attached to an otherwise
// successful response (quantity clamped, selection cleared, orphans dropped).
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
