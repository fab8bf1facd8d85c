package webrouter

import (
	"encoding/json"
	"net/http"

	"github.com/lebensspur/sentinel/internal/errkind"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps a domain error through errkind.HTTPStatus, falling back to
// 500 for anything errkind doesn't recognize.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, errkind.HTTPStatus(errkind.KindOf(err)), err.Error())
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
