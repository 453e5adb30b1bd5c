package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHoldSeats_OK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/showtimes/st-1/seats/hold" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body seatsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body.SeatIds) != 2 || body.SeatIds[0] != "A1" {
			t.Errorf("unexpected seat ids: %+v", body.SeatIds)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	result, err := client.HoldSeats(context.Background(), "st-1", []string{"A1", "A2"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
}

func TestHoldSeats_RejectionIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"success": false, "message": "seat A1 is no longer available"}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	result, err := client.HoldSeats(context.Background(), "st-1", []string{"A1"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result.Success {
		t.Fatal("expected failed hold")
	}
	if result.Message != "seat A1 is no longer available" {
		t.Fatalf("unexpected message: %q", result.Message)
	}
}

func TestHoldSeats_IsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	client.maxAttempts = 3
	if _, err := client.HoldSeats(context.Background(), "st-1", []string{"A1"}); err == nil {
		t.Fatal("expected error from the failed hold")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one hold request, got %d", got)
	}
}

func TestReleaseSeats_IsRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	client.maxAttempts = 3
	result, err := client.ReleaseSeats(context.Background(), "st-1", []string{"A1"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !result.Success || calls.Load() != 2 {
		t.Fatalf("expected success on second attempt, got %+v after %d calls", result, calls.Load())
	}
}

func TestReleaseSeats_ServerErrorIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server)
	client.maxAttempts = 1
	if _, err := client.ReleaseSeats(context.Background(), "st-1", []string{"A1"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSeatAction_RequiresInput(t *testing.T) {
	client := NewClient(nil)
	if _, err := client.SellSeats(context.Background(), "", []string{"A1"}); err == nil {
		t.Fatal("expected error for empty showtime")
	}
	if _, err := client.SellSeats(context.Background(), "st-1", nil); err == nil {
		t.Fatal("expected error for empty seats")
	}
}

func TestGetSeatMap_OK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/showtimes/st-1/seats" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "seats": [
    {"id": "A1", "row": "A", "number": 1, "type": "regular", "price": 90000, "status": "available"},
    {"id": "A2", "row": "A", "number": 2, "type": "vip", "price": 120000, "status": "sold"}
  ]
}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	seatMap, err := client.GetSeatMap(context.Background(), "st-1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if seatMap.ShowtimeId != "st-1" {
		t.Fatalf("expected showtime id to be filled, got %q", seatMap.ShowtimeId)
	}
	if len(seatMap.Seats) != 2 || seatMap.Seats[1].Price != 120000 {
		t.Fatalf("unexpected seats: %+v", seatMap.Seats)
	}
}
