package telephony

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crm-telephony/internal/calls"
	"crm-telephony/internal/reconcile"

	"github.com/gin-gonic/gin"
)

func newWebhookServer(store calls.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	coord := reconcile.NewCoordinator(store, nil, reconcile.Config{PersistBackoff: time.Millisecond})
	h := WebhookHandlers{Coordinator: coord}

	r := gin.New()
	r.POST("/webhooks/carrier/status", h.HandleStatusEvent)
	r.POST("/webhooks/carrier/recording", h.HandleRecordingEvent)
	return r
}

func seedWebhookCall(t *testing.T, store *calls.MemoryStore) {
	t.Helper()
	err := store.Create(context.Background(), calls.Call{
		CallID:                 "c1",
		ProviderCallID:         "PC1",
		ProviderConversationID: "CONV1",
		OwnerUserID:            "u1",
		Status:                 calls.StatusInitiated,
		StartTime:              time.Unix(1700000000, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHandleStatusEvent_Applies(t *testing.T) {
	store := calls.NewMemoryStore()
	r := newWebhookServer(store)
	seedWebhookCall(t, store)

	w := postJSON(r, "/webhooks/carrier/status",
		`{"providerCallId":"PC1","status":"answered","timestamp":"2023-11-14T22:13:30Z"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	cur, _ := store.FindByID(context.Background(), "c1")
	if cur.Status != calls.StatusInProgress {
		t.Fatalf("expected in_progress, got %q", cur.Status)
	}
}

func TestHandleStatusEvent_MalformedIsAcknowledged(t *testing.T) {
	store := calls.NewMemoryStore()
	r := newWebhookServer(store)
	seedWebhookCall(t, store)

	// Retrying a malformed payload never succeeds; 200 stops redelivery.
	w := postJSON(r, "/webhooks/carrier/status", `{"status":"answered"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ignored") {
		t.Fatalf("expected ignored, got %s", w.Body.String())
	}
}

func TestHandleStatusEvent_UnknownCallIsAcknowledged(t *testing.T) {
	store := calls.NewMemoryStore()
	r := newWebhookServer(store)

	w := postJSON(r, "/webhooks/carrier/status",
		`{"providerCallId":"PC-missing","status":"answered","timestamp":"2023-11-14T22:13:30Z"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHandleStatusEvent_StaleIsAcknowledged(t *testing.T) {
	store := calls.NewMemoryStore()
	r := newWebhookServer(store)
	seedWebhookCall(t, store)

	w := postJSON(r, "/webhooks/carrier/status",
		`{"providerCallId":"PC1","status":"unanswered","timestamp":"2023-11-14T22:13:30Z"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("terminal event: expected 200, got %d", w.Code)
	}

	// The late answered event is stale but still acknowledged.
	w = postJSON(r, "/webhooks/carrier/status",
		`{"providerCallId":"PC1","status":"answered","timestamp":"2023-11-14T22:14:00Z"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("stale event: expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "stale") {
		t.Fatalf("expected stale, got %s", w.Body.String())
	}

	cur, _ := store.FindByID(context.Background(), "c1")
	if cur.Status != calls.StatusNoAnswer {
		t.Fatalf("expected no_answer, got %q", cur.Status)
	}
}

func TestHandleStatusEvent_StoreOutageLeavesDeliveryUnacknowledged(t *testing.T) {
	store := calls.NewMemoryStore()
	r := newWebhookServer(store)
	seedWebhookCall(t, store)

	store.SaveHook = func(calls.Call) error { return fmt.Errorf("store down") }

	w := postJSON(r, "/webhooks/carrier/status",
		`{"providerCallId":"PC1","status":"answered","timestamp":"2023-11-14T22:13:30Z"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

// outageStore fails provider-key lookups until recovered.
type outageStore struct {
	*calls.MemoryStore
	down bool
}

func (s *outageStore) FindByProviderCallID(ctx context.Context, providerCallID string) (calls.Call, error) {
	if s.down {
		return calls.Call{}, fmt.Errorf("store down")
	}
	return s.MemoryStore.FindByProviderCallID(ctx, providerCallID)
}

// A delivery rejected by a store outage must stay redeliverable: the same
// payload applies once the store recovers.
func TestHandleStatusEvent_OutageThenRedeliveryApplies(t *testing.T) {
	mem := calls.NewMemoryStore()
	store := &outageStore{MemoryStore: mem, down: true}
	r := newWebhookServer(store)
	seedWebhookCall(t, mem)

	body := `{"providerCallId":"PC1","status":"answered","timestamp":"2023-11-14T22:13:30Z"}`

	w := postJSON(r, "/webhooks/carrier/status", body)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 during outage, got %d: %s", w.Code, w.Body.String())
	}

	store.down = false
	w = postJSON(r, "/webhooks/carrier/status", body)
	if w.Code != http.StatusOK {
		t.Fatalf("redelivery: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	cur, _ := mem.FindByID(context.Background(), "c1")
	if cur.Status != calls.StatusInProgress {
		t.Fatalf("event lost: expected in_progress, got %q", cur.Status)
	}
}

func TestHandleRecordingEvent_AttachesAndDeduplicates(t *testing.T) {
	store := calls.NewMemoryStore()
	r := newWebhookServer(store)
	seedWebhookCall(t, store)

	body := `{"providerConversationId":"CONV1","recordingUrl":"https://cdn.example.com/rec/1.mp3","startTime":"2023-11-14T10:00:00Z","endTime":"2023-11-14T10:02:30Z"}`

	w := postJSON(r, "/webhooks/carrier/recording", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	cur, _ := store.FindByID(context.Background(), "c1")
	if !cur.Recording.IsRecorded || cur.Recording.DurationSeconds != 150 {
		t.Fatalf("unexpected recording: %+v", cur.Recording)
	}

	// Idempotent second delivery.
	w = postJSON(r, "/webhooks/carrier/recording", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "duplicate") {
		t.Fatalf("expected duplicate, got %s", w.Body.String())
	}
}
