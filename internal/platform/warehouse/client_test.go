package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/platform/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(config.WarehouseConfig{BaseURL: srv.URL + "/", APIKey: "wh-key", Timeout: time.Second}, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestActiveWarehousesForwardsCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/warehouses/active" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer user-token" {
			t.Errorf("unexpected authorization %q", got)
		}
		if got := r.Header.Get(apiKeyHeader); got != "wh-key" {
			t.Errorf("unexpected api key %q", got)
		}
		_, _ = w.Write([]byte(`{"status":1,"type":"success","responseMessage":"ok","data":[{"_id":"wh-1","name":"North"},{"_id":" ","name":"blank"}]}`))
	})

	got, err := client.ActiveWarehouses(context.Background(), "user-token")
	if err != nil {
		t.Fatalf("ActiveWarehouses: %v", err)
	}
	if len(got) != 1 || got[0] != (domain.Warehouse{ID: "wh-1", Name: "North"}) {
		t.Fatalf("unexpected warehouses %+v", got)
	}
}

func TestAddQuantityToLocationsSendsReservations(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Reservations []reservationPayload `json:"reservations"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(body.Reservations) != 1 || body.Reservations[0].LocationID != "loc-1" || body.Reservations[0].Quantity != 5 {
			t.Errorf("unexpected reservations %+v", body.Reservations)
		}
		_, _ = w.Write([]byte(`{"status":1,"type":"success","responseMessage":"reserved","data":{}}`))
	})

	err := client.AddQuantityToLocations(context.Background(), "tok", []domain.LocationReservation{{LocationID: "loc-1", Quantity: 5}})
	if err != nil {
		t.Fatalf("AddQuantityToLocations: %v", err)
	}
}

func TestNonSuccessResponsesAreHardFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"envelope status 0", http.StatusOK, `{"status":0,"type":"error","responseMessage":"location full","data":{}}`, ErrRejected},
		{"client error", http.StatusForbidden, `{"status":0,"type":"error","responseMessage":"forbidden","data":{}}`, ErrRejected},
		{"server error", http.StatusBadGateway, `upstream down`, ErrUnavailable},
		{"malformed", http.StatusOK, `not json`, ErrUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.LocationsByIDs(context.Background(), "tok", []string{"loc-1"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLocationsByIDsSkipsCallForEmptyInput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	})
	got, err := client.LocationsByIDs(context.Background(), "tok", nil)
	if err != nil || got != nil {
		t.Fatalf("expected nil result, got %v %v", got, err)
	}
}
