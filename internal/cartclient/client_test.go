package cartclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/cart"
)

const (
	waitTimeout = 2 * time.Second
	waitTick    = 10 * time.Millisecond
)

func evaluateHandler(t *testing.T, respond func(w http.ResponseWriter, req evaluateRequest)) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/cart/promotional/evaluate", r.URL.Path)

		var req evaluateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		respond(w, req)
	})
}

func writeResult(w http.ResponseWriter, result cart.Result) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": result})
}

func TestClientEvaluate_DecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(evaluateHandler(t, func(w http.ResponseWriter, req evaluateRequest) {
		assert.Equal(t, "cust-1", req.CustomerID)
		writeResult(w, cart.Result{
			TotalDiscount: 5000,
			Pricing:       cart.Pricing{Subtotal: 50000, TotalAmount: 45000},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	res, err := client.Evaluate(context.Background(), cart.Snapshot{
		Items:      []cart.Item{{ProductID: "p1", Quantity: 1}},
		CustomerID: "cust-1",
	})

	require.NoError(t, err)
	assert.Equal(t, cart.Money(5000), res.TotalDiscount)
	assert.Equal(t, cart.Money(45000), res.Pricing.TotalAmount)
}

func TestClientEvaluate_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"error":{"message":"invalid discount code"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.Evaluate(context.Background(), cart.Snapshot{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid discount code")
}

func TestEvaluator_RetainsLastResult(t *testing.T) {
	srv := httptest.NewServer(evaluateHandler(t, func(w http.ResponseWriter, _ evaluateRequest) {
		writeResult(w, cart.Result{Pricing: cart.Pricing{TotalAmount: 42000}})
	}))
	defer srv.Close()

	ev := NewEvaluator(NewClient(srv.URL, nil))
	assert.Nil(t, ev.Last())

	res, err := ev.Evaluate(context.Background(), cart.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, res, ev.Last())
}

func TestEvaluator_StaleResponseSuperseded(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int64

	srv := httptest.NewServer(evaluateHandler(t, func(w http.ResponseWriter, _ evaluateRequest) {
		if calls.Add(1) == 1 {
			// Hold the first response until the second evaluation finished.
			<-release
			writeResult(w, cart.Result{Pricing: cart.Pricing{TotalAmount: 11111}})
			return
		}
		writeResult(w, cart.Result{Pricing: cart.Pricing{TotalAmount: 22222}})
	}))
	defer srv.Close()

	ev := NewEvaluator(NewClient(srv.URL, nil))

	firstDone := make(chan error, 1)
	go func() {
		_, err := ev.Evaluate(context.Background(), cart.Snapshot{})
		firstDone <- err
	}()

	// Wait until the first request is held by the server.
	require.Eventually(t, func() bool { return calls.Load() == 1 },
		waitTimeout, waitTick)

	second, err := ev.Evaluate(context.Background(), cart.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, cart.Money(22222), second.Pricing.TotalAmount)

	close(release)
	require.ErrorIs(t, <-firstDone, ErrSuperseded)

	// The stale response never overwrote the newer result.
	assert.Equal(t, cart.Money(22222), ev.Last().Pricing.TotalAmount)
}

func TestEvaluator_FailureKeepsLastKnownGood(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"success":false,"error":{"message":"internal error"}}`))
			return
		}
		writeResult(w, cart.Result{Pricing: cart.Pricing{TotalAmount: 33333}})
	}))
	defer srv.Close()

	ev := NewEvaluator(NewClient(srv.URL, nil))

	_, err := ev.Evaluate(context.Background(), cart.Snapshot{})
	require.NoError(t, err)

	fail.Store(true)
	_, err = ev.Evaluate(context.Background(), cart.Snapshot{})
	require.Error(t, err)
	assert.Equal(t, cart.Money(33333), ev.Last().Pricing.TotalAmount)
}
