// Package httpx is the JSON plumbing shared by every HTTP handler:
// success responses, RFC 7807 problem documents and request decoding.
package httpx

import (
	"encoding/json"
	"net/http"
)

// problemBody is the RFC 7807 document rendered on error responses.
type problemBody struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes data as a JSON body with the given status. Encoding errors
// are dropped; the status line is already on the wire by then.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem writes an RFC 7807 problem document.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, problemBody{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON unmarshals the request body into target.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
