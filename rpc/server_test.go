package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"invoicechain/core/events"
	"invoicechain/core/state"
	"invoicechain/native/invoice"
	"invoicechain/native/registry"
	"invoicechain/storage"
)

func addrOf(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

type testEnv struct {
	server  *httptest.Server
	manager *state.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	buffer := events.NewMemoryEmitter()

	invoices := invoice.NewEngine()
	invoices.SetState(manager)
	invoices.SetRateSource(manager)
	invoices.SetDisputeAllocator(manager)
	invoices.SetEmitter(buffer)

	factory, err := registry.NewEngine(addrOf(0x0F), addrOf(0xAD), addrOf(0x11), invoices)
	require.NoError(t, err)
	factory.SetState(manager)
	factory.SetEmitter(buffer)

	srv := NewServer(":0", invoices, factory, buffer, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, manager: manager}
}

func (env *testEnv) post(t *testing.T, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(env.server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (env *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(env.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func initPayload(t *testing.T) string {
	t.Helper()
	data, err := invoice.EncodeBaseInit(invoice.BaseInit{
		Client:              addrOf(0x01),
		ResolverType:        invoice.ResolverIndividual,
		Resolver:            addrOf(0x03),
		Token:               addrOf(0x10),
		TerminationTime:     time.Now().Unix() + 3_600,
		WrappedNative:       addrOf(0x11),
		RequireVerification: false,
		Factory:             addrOf(0x0F),
	})
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(data)
}

func TestSettlementFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	// Register the template before deployments are possible.
	resp, body := env.post(t, "/v1/factory/invoices", map[string]interface{}{
		"caller":   formatAddr(addrOf(0x01)),
		"kind":     "escrow",
		"provider": formatAddr(addrOf(0x02)),
		"amounts":  []string{"10", "10"},
		"init":     initPayload(t),
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode, string(body))

	resp, body = env.post(t, "/v1/factory/implementations", map[string]interface{}{
		"caller":         formatAddr(addrOf(0xAD)),
		"kind":           "escrow",
		"implementation": formatAddr(addrOf(0xE0)),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = env.post(t, "/v1/factory/invoices", map[string]interface{}{
		"caller":   formatAddr(addrOf(0x01)),
		"kind":     "escrow",
		"provider": formatAddr(addrOf(0x02)),
		"amounts":  []string{"10", "10"},
		"init":     initPayload(t),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created invoiceView
	require.NoError(t, json.Unmarshal(body, &created))
	require.Equal(t, uint64(0), created.ID)
	require.Equal(t, "escrow", created.Kind)
	require.True(t, created.Verified)

	invoicePath := "/v1/invoices/" + created.Address

	// Fund the client and settle the first milestone.
	client := addrOf(0x01)
	require.NoError(t, env.manager.TokenMint(addrOf(0x10), client, big.NewInt(100)))

	resp, body = env.post(t, invoicePath+"/deposit", map[string]interface{}{
		"sender": formatAddr(client),
		"amount": "20",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = env.get(t, invoicePath+"/held")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"held":"20"}`, string(body))

	resp, body = env.post(t, invoicePath+"/release", map[string]interface{}{
		"caller": formatAddr(addrOf(0x02)),
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode, string(body))

	resp, body = env.post(t, invoicePath+"/release", map[string]interface{}{
		"caller": formatAddr(client),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var released invoiceView
	require.NoError(t, json.Unmarshal(body, &released))
	require.Equal(t, uint64(1), released.Milestone)
	require.Equal(t, "10", released.Released)

	providerBalance, err := env.manager.TokenBalance(addrOf(0x10), addrOf(0x02))
	require.NoError(t, err)
	require.Equal(t, int64(10), providerBalance.Int64())

	// Dispute the remainder and settle it as the resolver.
	resp, body = env.post(t, invoicePath+"/lock", map[string]interface{}{
		"caller": formatAddr(addrOf(0x02)),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = env.post(t, invoicePath+"/resolve", map[string]interface{}{
		"caller":        formatAddr(addrOf(0x03)),
		"clientAward":   "4",
		"providerAward": "5",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))

	resp, body = env.post(t, invoicePath+"/resolve", map[string]interface{}{
		"caller":        formatAddr(addrOf(0x03)),
		"clientAward":   "4",
		"providerAward": "6",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var resolved invoiceView
	require.NoError(t, json.Unmarshal(body, &resolved))
	require.False(t, resolved.Locked)

	// The event buffer replays the settlement history.
	resp, body = env.get(t, "/v1/events?type="+invoice.EventTypeInvoiceReleased)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var eventsPayload struct {
		Events []struct {
			Type       string            `json:"type"`
			Attributes map[string]string `json:"attributes"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(body, &eventsPayload))
	require.Len(t, eventsPayload.Events, 1)
	require.Equal(t, "10", eventsPayload.Events[0].Attributes["amount"])
}

func TestDeterministicEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/v1/factory/implementations", map[string]interface{}{
		"caller":         formatAddr(addrOf(0xAD)),
		"kind":           "escrow",
		"implementation": formatAddr(addrOf(0xE0)),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	salt := "0x" + fmt.Sprintf("%064x", 0x5A)
	resp, body = env.post(t, "/v1/factory/invoices/predict", map[string]interface{}{
		"kind": "escrow",
		"salt": salt,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var predicted struct {
		Address string `json:"address"`
	}
	require.NoError(t, json.Unmarshal(body, &predicted))

	resp, body = env.post(t, "/v1/factory/invoices/deterministic", map[string]interface{}{
		"caller":   formatAddr(addrOf(0x01)),
		"kind":     "escrow",
		"provider": formatAddr(addrOf(0x02)),
		"amounts":  []string{"10"},
		"init":     initPayload(t),
		"salt":     salt,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created invoiceView
	require.NoError(t, json.Unmarshal(body, &created))
	require.Equal(t, predicted.Address, created.Address)

	resp, body = env.post(t, "/v1/factory/invoices/deterministic", map[string]interface{}{
		"caller":   formatAddr(addrOf(0x01)),
		"kind":     "escrow",
		"provider": formatAddr(addrOf(0x02)),
		"amounts":  []string{"10"},
		"init":     initPayload(t),
		"salt":     salt,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode, string(body))
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.post(t, "/v1/factory/implementations", map[string]interface{}{
		"caller": "not-an-address",
		"kind":   "escrow",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.get(t, "/v1/invoices/"+formatAddr(addrOf(0x77)))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
