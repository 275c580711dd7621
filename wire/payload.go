package wire

// Per-kind payload schemas. A closed set of tagged structs replaces the
// self-describing payload objects of older protocol revisions, so the
// server validates shape instead of trusting whatever deserializes.

// Credentials is the REGISTER and LOGIN request payload. The password
// travels raw on this hop; the relay digests it before any credential
// store lookup.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChatRequest is the client CHAT payload. The token must match the
// sending session's token or the frame is dropped.
type ChatRequest struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

// AuthResult answers a REGISTER or LOGIN attempt. Token is empty on
// failure.
type AuthResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
	Token   string `json:"token"`
}

// ChatEvent is the broadcast CHAT payload. Username and color come from
// the sender's session, never from the request.
type ChatEvent struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Color    string `json:"chat_color"`
}

// Presence is one roster entry inside ROSTER, JOINED and LEFT payloads.
// Tokens never appear here.
type Presence struct {
	Username string `json:"username"`
	Color    string `json:"chat_color"`
}
