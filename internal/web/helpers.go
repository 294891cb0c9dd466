package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/steveyegge/authcap/internal/supervisor"
)

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult writes a control result using its status as the HTTP status.
func writeResult(w http.ResponseWriter, res supervisor.Result) {
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}{
		OK:    false,
		Error: message,
	})
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}
