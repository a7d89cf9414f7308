package flowguard

import (
	"encoding/json"
	"net/http"
)

// CallerHeader names the sender identity on guarded HTTP requests.
// Empty falls back to the client-level caller.
const CallerHeader = "X-Flowguard-Caller"

// Middleware returns an http.Handler that runs each request as its own
// guarded transaction under the given routine id. Blocked requests
// receive a 403 with a JSON body; a flow blocked on exit is rejected
// too, unless the handler already started writing the response.
func (c *Client) Middleware(id int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := r.Header.Get(CallerHeader)
		if caller == "" {
			caller = c.cfg.caller
		}

		session := c.engine.Begin()
		ctx := r.Context()

		if err := c.engine.Validator.EnterExternal(ctx, id, caller, nil); err != nil {
			writeBlocked(w, session.String(), asBlocked(id, caller, err))
			return
		}

		tw := &trackingWriter{ResponseWriter: w}
		next.ServeHTTP(tw, r.WithContext(ctx))

		if err := c.engine.Validator.ExitExternal(ctx, id, caller, 0, nil, nil); err != nil {
			if !tw.wrote {
				writeBlocked(w, session.String(), asBlocked(id, caller, err))
			}
			return
		}
	})
}

func writeBlocked(w http.ResponseWriter, session string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(map[string]any{
		"blocked": true,
		"session": session,
		"reason":  err.Error(),
	})
}

// trackingWriter records whether the handler wrote anything, so a flow
// blocked on exit can still produce a 403 when the response is untouched.
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackingWriter) WriteHeader(code int) {
	t.wrote = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(b)
}
