package harvester

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testRouter(manager *RunManager) http.Handler {
	return NewRouter(NewHandler(manager, nil, nil))
}

func TestHandler_Health(t *testing.T) {
	router := testRouter(NewRunManager(&MockCollector{}, testAccounts()))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Health() status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandler_StartHarvest(t *testing.T) {
	t.Run("returns 400 on invalid json", func(t *testing.T) {
		router := testRouter(NewRunManager(&MockCollector{}, testAccounts()))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/harvest", bytes.NewBufferString("not json"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("returns 400 on validation error", func(t *testing.T) {
		router := testRouter(NewRunManager(&MockCollector{}, testAccounts()))

		body := `{"requester":"op","date":"15.01.2024"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/harvest", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("returns 400 on unknown account", func(t *testing.T) {
		router := testRouter(NewRunManager(&MockCollector{}, testAccounts()))

		body := fmt.Sprintf(`{"requester":"op","date":%q,"account":"nope"}`, yesterday())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/harvest", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("starts run and returns it", func(t *testing.T) {
		manager := NewRunManager(&MockCollector{}, testAccounts())
		router := testRouter(manager)

		body := fmt.Sprintf(`{"requester":"op","date":%q}`, yesterday())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/harvest", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
		}

		var run Run
		if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if run.Requester != "op" {
			t.Errorf("run.Requester = %s, want op", run.Requester)
		}
	})

	t.Run("returns 409 while running", func(t *testing.T) {
		manager := NewRunManager(&MockCollector{Delay: 100 * time.Millisecond}, testAccounts())
		router := testRouter(manager)

		body := fmt.Sprintf(`{"requester":"op","date":%q}`, yesterday())
		first := httptest.NewRequest(http.MethodPost, "/api/v1/harvest", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, first)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("first status = %d, want %d", rec.Code, http.StatusAccepted)
		}

		second := httptest.NewRequest(http.MethodPost, "/api/v1/harvest", bytes.NewBufferString(body))
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, second)
		if rec.Code != http.StatusConflict {
			t.Errorf("second status = %d, want %d", rec.Code, http.StatusConflict)
		}
	})
}

func TestHandler_HarvestStatus(t *testing.T) {
	t.Run("requires requester", func(t *testing.T) {
		router := testRouter(NewRunManager(&MockCollector{}, testAccounts()))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/harvest/status", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("idle when no run", func(t *testing.T) {
		router := testRouter(NewRunManager(&MockCollector{}, testAccounts()))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/harvest/status?requester=op", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var resp map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp["status"] != "idle" {
			t.Errorf("status = %s, want idle", resp["status"])
		}
	})

	t.Run("completed after run finishes", func(t *testing.T) {
		manager := NewRunManager(&MockCollector{Lines: []string{"done"}}, testAccounts())
		router := testRouter(manager)

		_, _ = manager.Start(nil, validRequest("op"))
		waitDone(t, manager, "op")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/harvest/status?requester=op", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var resp struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Status != "completed" {
			t.Errorf("status = %s, want completed", resp.Status)
		}
	})
}

func TestHandler_CancelHarvest(t *testing.T) {
	t.Run("404 when nothing to cancel", func(t *testing.T) {
		router := testRouter(NewRunManager(&MockCollector{}, testAccounts()))

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/harvest/current?requester=op", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("409 while running", func(t *testing.T) {
		manager := NewRunManager(&MockCollector{Delay: 100 * time.Millisecond}, testAccounts())
		router := testRouter(manager)

		_, _ = manager.Start(nil, validRequest("op"))

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/harvest/current?requester=op", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
		}
	})

	t.Run("clears finished run", func(t *testing.T) {
		manager := NewRunManager(&MockCollector{}, testAccounts())
		router := testRouter(manager)

		_, _ = manager.Start(nil, validRequest("op"))
		waitDone(t, manager, "op")

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/harvest/current?requester=op", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if run := manager.Current("op"); run != nil {
			t.Errorf("run still present after cancel: %v", run)
		}
	})
}

func yesterday() string {
	return time.Now().UTC().AddDate(0, 0, -1).Format(dateLayout)
}
