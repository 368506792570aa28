package testutil

import (
	"net/http"
	"testing"
)

func TestServeAndDecode(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.RemoteAddr != "127.0.0.1:40000" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	rec := Serve(h, LocalRequest(http.MethodGet, "/debug/x"))
	AssertStatusCode(t, rec.Code, http.StatusOK)

	var body struct{ OK bool }
	DecodeJSON(t, rec, &body)
	if !body.OK {
		t.Error("expected ok=true")
	}
}
