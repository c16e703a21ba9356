package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"invoicechain/core/types"
	"invoicechain/native/invoice"
)

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %v", err))
		return false
	}
	return true
}

func (s *Server) invoiceAddr(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	addr, err := parseAddr("addr", chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return [20]byte{}, false
	}
	return addr, true
}

// --- Factory endpoints ---

type addImplementationRequest struct {
	Caller         string `json:"caller"`
	Kind           string `json:"kind"`
	Implementation string `json:"implementation"`
}

func (s *Server) handleAddImplementation(w http.ResponseWriter, r *http.Request) {
	var req addImplementationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	impl, err := parseAddr("implementation", req.Implementation)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	version, err := s.factory.AddImplementation(caller, invoice.Kind(req.Kind), impl)
	s.metrics.observeOp("factory.add_implementation", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint32{"version": version})
}

func (s *Server) handleCurrentVersion(w http.ResponseWriter, r *http.Request) {
	kind := invoice.Kind(chi.URLParam(r, "kind"))
	version, impl, err := s.factory.CurrentVersion(kind)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"kind":           string(kind),
		"version":        version,
		"implementation": formatAddr(impl),
	})
}

type createRequest struct {
	Caller   string   `json:"caller"`
	Kind     string   `json:"kind"`
	Provider string   `json:"provider"`
	Amounts  []string `json:"amounts"`
	Init     string   `json:"init"`
	Salt     string   `json:"salt,omitempty"`
}

func (s *Server) parseCreate(w http.ResponseWriter, r *http.Request) (req createRequest, caller, provider [20]byte, amounts []*big.Int, initData []byte, ok bool) {
	if !decodeBody(w, r, &req) {
		return
	}
	var err error
	if caller, err = parseAddr("caller", req.Caller); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if provider, err = parseAddr("provider", req.Provider); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if amounts, err = parseAmounts("amounts", req.Amounts); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if initData, err = parseHexData("init", req.Init); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ok = true
	return
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, caller, provider, amounts, initData, ok := s.parseCreate(w, r)
	if !ok {
		return
	}
	inv, err := s.factory.Create(caller, invoice.Kind(req.Kind), provider, amounts, initData)
	s.metrics.observeOp("factory.create", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderInvoice(inv))
}

func (s *Server) handleCreateDeterministic(w http.ResponseWriter, r *http.Request) {
	req, caller, provider, amounts, initData, ok := s.parseCreate(w, r)
	if !ok {
		return
	}
	salt, err := parseHash("salt", req.Salt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	inv, err := s.factory.CreateDeterministic(caller, invoice.Kind(req.Kind), provider, amounts, initData, salt)
	s.metrics.observeOp("factory.create_deterministic", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderInvoice(inv))
}

type predictRequest struct {
	Kind string `json:"kind"`
	Salt string `json:"salt"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if !decodeBody(w, r, &req) {
		return
	}
	salt, err := parseHash("salt", req.Salt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, err := s.factory.PredictDeterministicAddress(invoice.Kind(req.Kind), salt)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": formatAddr(addr)})
}

func (s *Server) handleInvoiceCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.factory.InvoiceCount()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"count": count})
}

func (s *Server) handleInvoiceAddress(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("id: %v", err))
		return
	}
	addr, ok, err := s.factory.InvoiceAddress(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, invoice.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": formatAddr(addr)})
}

type updateRateRequest struct {
	Caller  string `json:"caller"`
	RateBps uint32 `json:"rateBps"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleUpdateResolutionRate(w http.ResponseWriter, r *http.Request) {
	var req updateRateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	details, err := parseHash("details", req.Details)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err = s.factory.UpdateResolutionRate(caller, req.RateBps, details)
	s.metrics.observeOp("factory.update_resolution_rate", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint32{"rateBps": req.RateBps})
}

func (s *Server) handleResolutionRate(w http.ResponseWriter, r *http.Request) {
	resolver, err := parseAddr("resolver", chi.URLParam(r, "resolver"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rate, ok, err := s.factory.ResolutionRate(resolver)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rateBps": rate, "registered": ok})
}

// --- Invoice endpoints ---

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.invoiceAddr(w, r)
	if !ok {
		return
	}
	inv, err := s.invoices.Get(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderInvoice(inv))
}

func (s *Server) handleHeld(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.invoiceAddr(w, r)
	if !ok {
		return
	}
	held, err := s.invoices.Held(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"held": formatAmount(held)})
}

type depositRequest struct {
	Sender string `json:"sender"`
	Amount string `json:"amount"`
	Native bool   `json:"native,omitempty"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.invoiceAddr(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sender, err := parseAddr("sender", req.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Native {
		err = s.invoices.DepositNative(addr, sender, amount)
		s.metrics.observeOp("invoice.deposit_native", err)
	} else {
		err = s.invoices.Deposit(addr, sender, amount)
		s.metrics.observeOp("invoice.deposit", err)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deposited"})
}

type callerRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) callerOp(w http.ResponseWriter, r *http.Request, op string, fn func(addr, caller [20]byte) error) {
	addr, ok := s.invoiceAddr(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err = fn(addr, caller)
	s.metrics.observeOp(op, err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	inv, err := s.invoices.Get(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderInvoice(inv))
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	s.callerOp(w, r, "invoice.release", s.invoices.Release)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	s.callerOp(w, r, "invoice.verify", s.invoices.Verify)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.callerOp(w, r, "invoice.withdraw", s.invoices.Withdraw)
}

type addMilestonesRequest struct {
	Caller  string   `json:"caller"`
	Amounts []string `json:"amounts"`
}

func (s *Server) handleAddMilestones(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.invoiceAddr(w, r)
	if !ok {
		return
	}
	var req addMilestonesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amounts, err := parseAmounts("amounts", req.Amounts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err = s.invoices.AddMilestones(addr, caller, amounts)
	s.metrics.observeOp("invoice.add_milestones", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	inv, err := s.invoices.Get(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderInvoice(inv))
}

type lockRequest struct {
	Caller  string `json:"caller"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.invoiceAddr(w, r)
	if !ok {
		return
	}
	var req lockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	details, err := parseHash("details", req.Details)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err = s.invoices.Lock(addr, caller, details)
	s.metrics.observeOp("invoice.lock", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	inv, err := s.invoices.Get(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderInvoice(inv))
}

type resolveRequest struct {
	Caller        string `json:"caller"`
	ClientAward   string `json:"clientAward"`
	ProviderAward string `json:"providerAward"`
	Details       string `json:"details,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.invoiceAddr(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	clientAward, err := parseAmount("clientAward", req.ClientAward)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	providerAward, err := parseAmount("providerAward", req.ProviderAward)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	details, err := parseHash("details", req.Details)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err = s.invoices.Resolve(addr, caller, clientAward, providerAward, details)
	s.metrics.observeOp("invoice.resolve", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	inv, err := s.invoices.Get(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderInvoice(inv))
}

type ruleRequest struct {
	Caller    string `json:"caller"`
	DisputeID uint64 `json:"disputeId"`
	Ruling    uint8  `json:"ruling"`
}

func (s *Server) handleRule(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.invoiceAddr(w, r)
	if !ok {
		return
	}
	var req ruleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err = s.invoices.Rule(addr, caller, req.DisputeID, req.Ruling)
	s.metrics.observeOp("invoice.rule", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	inv, err := s.invoices.Get(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderInvoice(inv))
}

type updateAddressRequest struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

func (s *Server) updateOp(w http.ResponseWriter, r *http.Request, op string, optional bool, fn func(addr, caller, next [20]byte) error) {
	addr, ok := s.invoiceAddr(w, r)
	if !ok {
		return
	}
	var req updateAddressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var next [20]byte
	if optional {
		next, err = parseOptionalAddr("address", req.Address)
	} else {
		next, err = parseAddr("address", req.Address)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err = fn(addr, caller, next)
	s.metrics.observeOp(op, err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	inv, err := s.invoices.Get(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderInvoice(inv))
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	s.updateOp(w, r, "invoice.update_client", false, s.invoices.UpdateClient)
}

func (s *Server) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	s.updateOp(w, r, "invoice.update_provider", false, s.invoices.UpdateProvider)
}

func (s *Server) handleUpdateClientReceiver(w http.ResponseWriter, r *http.Request) {
	s.updateOp(w, r, "invoice.update_client_receiver", true, s.invoices.UpdateClientReceiver)
}

func (s *Server) handleUpdateProviderReceiver(w http.ResponseWriter, r *http.Request) {
	s.updateOp(w, r, "invoice.update_provider_receiver", true, s.invoices.UpdateProviderReceiver)
}

// --- Events ---

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("type")
	all := s.buffer.Events()
	out := make([]*types.Event, 0, len(all))
	for _, evt := range all {
		if filter == "" || evt.Type == filter {
			out = append(out, evt)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}
