package models

// APIResponse is the envelope of every REST response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// LoginResponse is returned by the presenter login stub
type LoginResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
	Token    string `json:"token"`
}
