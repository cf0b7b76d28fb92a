// Package node exposes the operational API of a running role node:
// phase inspection, document cleanup, key provisioning and a read-only
// view of the effective configuration.
package node

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/planboard"
	"github.com/kilianp07/usef/core/sign"
	"github.com/kilianp07/usef/pkg/export"
)

// KeyWriter provisions signing material at runtime.
type KeyWriter interface {
	StoreLocal(p model.Participant, seed []byte) (string, error)
	StoreCounterpart(p model.Participant, publicBlob string) error
}

// NewPhaseHandler returns an HTTP handler exposing the plan-board phase of
// one PTU via GET /api/phase?group=&day=&ptu=. Requests must include an
// Authorization header with "Bearer <token>" when token is non-empty.
func NewPhaseHandler(store planboard.PtuStore, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		group := r.URL.Query().Get("group")
		if group == "" {
			http.Error(w, "group is required", http.StatusBadRequest)
			return
		}
		day, err := time.Parse("2006-01-02", r.URL.Query().Get("day"))
		if err != nil {
			http.Error(w, "day must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		ptu, err := strconv.Atoi(r.URL.Query().Get("ptu"))
		if err != nil {
			http.Error(w, "ptu must be an integer", http.StatusBadRequest)
			return
		}
		phase, known, err := store.Phase(group, model.Ptu{Period: day, Index: ptu})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"group": group,
			"day":   day.Format("2006-01-02"),
			"ptu":   ptu,
			"phase": phase.String(),
			"known": known,
		})
	})
}

// NewCleanupHandler returns an HTTP handler archiving stored documents
// via POST /api/cleanup with body {"day": "YYYY-MM-DD", "days": N}.
// Days defaults to 1 and extends the window forward from day.
func NewCleanupHandler(store planboard.DocumentStore, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Day  string `json:"day"`
			Days int    `json:"days"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		day, err := time.Parse("2006-01-02", req.Day)
		if err != nil {
			http.Error(w, "day must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		if req.Days <= 0 {
			req.Days = 1
		}
		for i := 0; i < req.Days; i++ {
			if err := store.CleanupDay(day.AddDate(0, 0, i)); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		writeJSON(w, map[string]any{"result": "archived", "day": req.Day, "days": req.Days})
	})
}

// NewRecreateHandler returns an HTTP handler listing documents flagged for
// re-creation via GET /api/recreate.
func NewRecreateHandler(store planboard.DocumentStore, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		docs, err := store.ToBeRecreated()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out := make([]map[string]any, 0, len(docs))
		for _, d := range docs {
			out = append(out, map[string]any{
				"sequence_number": d.SequenceNumber,
				"sender_domain":   d.Sender.Domain,
				"document_type":   string(d.Type),
				"group":           d.ConnectionGroup,
			})
		}
		writeJSON(w, out)
	})
}

// NewExportHandler returns an HTTP handler exporting one day of
// documents via GET /api/export?day=YYYY-MM-DD&format=csv|json.
func NewExportHandler(store planboard.DocumentStore, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		day, err := time.Parse("2006-01-02", r.URL.Query().Get("day"))
		if err != nil {
			http.Error(w, "day must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		format := r.URL.Query().Get("format")
		if format == "csv" {
			w.Header().Set("Content-Type", "text/csv")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		if err := export.WriteDay(w, store, day, format); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// NewKeyHandler returns an HTTP handler provisioning signing keys via
// POST /api/keys. A body carrying a base64 seed generates a local key pair
// and answers with its public blob; a body carrying a public blob registers
// a counterpart key.
func NewKeyHandler(keys KeyWriter, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Role       string `json:"role"`
			Domain     string `json:"domain"`
			Seed       string `json:"seed,omitempty"`
			PublicBlob string `json:"public_key,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		role, ok := model.ParseRole(req.Role)
		if !ok {
			http.Error(w, "unknown role", http.StatusBadRequest)
			return
		}
		p := model.Participant{Role: role, Domain: req.Domain}
		switch {
		case req.Seed != "":
			seed, err := base64.StdEncoding.DecodeString(req.Seed)
			if err != nil {
				http.Error(w, "seed must be base64", http.StatusBadRequest)
				return
			}
			blob, err := keys.StoreLocal(p, seed)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			writeJSON(w, map[string]string{"participant": p.String(), "public_key": blob})
		case req.PublicBlob != "":
			if _, err := sign.DecodePublicBlob(req.PublicBlob); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := keys.StoreCounterpart(p, req.PublicBlob); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, map[string]string{"participant": p.String(), "result": "registered"})
		default:
			http.Error(w, "seed or public_key is required", http.StatusBadRequest)
		}
	})
}

// ConfigView is the whitelisted configuration subset served to operators.
// Secrets and key material never appear here.
type ConfigView struct {
	Role                string   `json:"role"`
	Domain              string   `json:"domain"`
	PtuDurationMinutes  int      `json:"ptu_duration_minutes"`
	DayAheadGateClosure string   `json:"day_ahead_gate_closure"`
	Groups              []string `json:"groups"`
	TransportType       string   `json:"transport_type"`
	PlanboardType       string   `json:"planboard_type"`
	RegistryMode        string   `json:"registry_mode"`
}

// NewConfigHandler returns an HTTP handler serving the view via
// GET /api/config.
func NewConfigHandler(view ConfigView, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, view)
	})
}

// NewMux wires all operational handlers onto one ServeMux.
func NewMux(ptus planboard.PtuStore, docs planboard.DocumentStore, keys KeyWriter, view ConfigView, token string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/phase", NewPhaseHandler(ptus, token))
	mux.Handle("/api/cleanup", NewCleanupHandler(docs, token))
	mux.Handle("/api/recreate", NewRecreateHandler(docs, token))
	mux.Handle("/api/export", NewExportHandler(docs, token))
	mux.Handle("/api/keys", NewKeyHandler(keys, token))
	mux.Handle("/api/config", NewConfigHandler(view, token))
	return mux
}

func authorized(w http.ResponseWriter, r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	if r.Header.Get("Authorization") != "Bearer "+token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
