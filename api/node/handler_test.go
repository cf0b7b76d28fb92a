package node

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/planboard"
	"github.com/kilianp07/usef/core/sign"
)

type fakeKeys struct {
	local       map[string]string
	counterpart map[string]string
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{local: map[string]string{}, counterpart: map[string]string{}}
}

func (f *fakeKeys) StoreLocal(p model.Participant, seed []byte) (string, error) {
	_, blob, err := sign.GenerateKeyPair(seed)
	if err != nil {
		return "", err
	}
	f.local[p.String()] = blob
	return blob, nil
}

func (f *fakeKeys) StoreCounterpart(p model.Participant, publicBlob string) error {
	f.counterpart[p.String()] = publicBlob
	return nil
}

func testMux(t *testing.T, store *planboard.MemoryStore, keys KeyWriter, token string) *http.ServeMux {
	t.Helper()
	view := ConfigView{Role: "AGR", Domain: "agr.example.com", PtuDurationMinutes: 15, RegistryMode: "static"}
	return NewMux(store, store, keys, view, token)
}

func TestPhaseHandler(t *testing.T) {
	store := planboard.NewMemoryStore(model.ConnectionGroup{ID: "cg.1"})
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if err := store.AdvancePhase("cg.1", model.Ptu{Period: day, Index: 12}, model.PhaseOperate); err != nil {
		t.Fatalf("advance: %v", err)
	}
	mux := testMux(t, store, newFakeKeys(), "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/phase?group=cg.1&day=2026-03-14&ptu=12", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Phase string `json:"phase"`
		Known bool   `json:"known"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Known || resp.Phase != model.PhaseOperate.String() {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/phase?group=cg.1&day=not-a-day&ptu=1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCleanupHandlerArchivesDay(t *testing.T) {
	store := planboard.NewMemoryStore()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	doc := model.Document{
		Type:           model.DocFlexOrder,
		SequenceNumber: 9,
		Period:         day,
		Sender:         model.Participant{Role: model.RoleDSO, Domain: "dso.example.net"},
		Status:         model.StatusToBeRecreated,
	}
	if err := store.SaveDocument(doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	next := doc
	next.SequenceNumber = 10
	next.Period = day.AddDate(0, 0, 1)
	if err := store.SaveDocument(next); err != nil {
		t.Fatalf("save next day: %v", err)
	}
	mux := testMux(t, store, newFakeKeys(), "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cleanup", strings.NewReader(`{"day":"2026-03-14","days":2}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	flagged, err := store.ToBeRecreated()
	if err != nil {
		t.Fatalf("to be recreated: %v", err)
	}
	if len(flagged) != 0 {
		t.Fatalf("cleanup left %d flagged documents", len(flagged))
	}
}

func TestRecreateHandlerListsFlagged(t *testing.T) {
	store := planboard.NewMemoryStore()
	doc := model.Document{
		Type:            model.DocFlexSettlement,
		SequenceNumber:  4,
		Period:          time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		ConnectionGroup: "cg.1",
		Sender:          model.Participant{Role: model.RoleBRP, Domain: "brp.example.org"},
		Status:          model.StatusToBeRecreated,
	}
	if err := store.SaveDocument(doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	mux := testMux(t, store, newFakeKeys(), "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recreate", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var out []struct {
		Seq  int64  `json:"sequence_number"`
		Type string `json:"document_type"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Seq != 4 || out[0].Type != "FlexSettlement" {
		t.Fatalf("unexpected listing %+v", out)
	}
}

func TestExportHandlerServesCSV(t *testing.T) {
	store := planboard.NewMemoryStore()
	doc := model.Document{
		Type:           model.DocFlexRequest,
		SequenceNumber: 11,
		Period:         time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Sender:         model.Participant{Role: model.RoleDSO, Domain: "dso.example.net"},
		Recipient:      model.Participant{Role: model.RoleAGR, Domain: "agr.example.com"},
		Status:         model.StatusSent,
	}
	if err := store.SaveDocument(doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	mux := testMux(t, store, newFakeKeys(), "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/export?day=2026-03-14&format=csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "11,FlexRequest,2026-03-14") {
		t.Fatalf("row missing from export: %q", rec.Body.String())
	}
}

func TestKeyHandlerGeneratesAndRegisters(t *testing.T) {
	keys := newFakeKeys()
	mux := testMux(t, planboard.NewMemoryStore(), keys, "")

	seed := base64.StdEncoding.EncodeToString(make([]byte, 32))
	body := `{"role":"AGR","domain":"agr.example.com","seed":"` + seed + `"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/keys", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := sign.DecodePublicBlob(resp.PublicKey); err != nil {
		t.Fatalf("handler returned invalid blob: %v", err)
	}

	body = `{"role":"DSO","domain":"dso.example.net","public_key":"` + resp.PublicKey + `"}`
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/keys", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if keys.counterpart["DSO@dso.example.net"] != resp.PublicKey {
		t.Fatal("counterpart key not stored")
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/keys", strings.NewReader(`{"role":"AGR","domain":"d","public_key":"garbage"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed blob, got %d", rec.Code)
	}
}

func TestConfigHandlerServesView(t *testing.T) {
	mux := testMux(t, planboard.NewMemoryStore(), newFakeKeys(), "")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var view ConfigView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Role != "AGR" || view.PtuDurationMinutes != 15 {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestBearerTokenRequired(t *testing.T) {
	mux := testMux(t, planboard.NewMemoryStore(), newFakeKeys(), "secret")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
