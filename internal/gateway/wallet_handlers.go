// ABOUTME: HTTP handlers for the server wallet at /api/server-wallet
// ABOUTME: Session lifecycle, payment requests, balances and funding submission

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/fundgate/internal/apperr"
	"github.com/2389/fundgate/internal/auth"
	"github.com/2389/fundgate/internal/brc29"
	"github.com/2389/fundgate/internal/funding"
	"github.com/2389/fundgate/internal/session"
)

// operatorActions require a bearer token when auth is enabled.
var operatorActions = map[string]bool{
	"create":  true,
	"reset":   true,
	"balance": true,
	"outputs": true,
}

type walletStatus struct {
	State       session.State  `json:"state"`
	IdentityKey string         `json:"identityKey"`
	Network     string         `json:"network"`
	Address     string         `json:"address"`
	Source      session.Source `json:"source"`
}

type createResponse struct {
	Success           bool         `json:"success"`
	ServerIdentityKey string       `json:"serverIdentityKey"`
	Status            walletStatus `json:"status"`
}

type statusResponse struct {
	Success bool `json:"success"`
	session.Status
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type requestResponse struct {
	Success           bool                    `json:"success"`
	PaymentRequest    *funding.PaymentRequest `json:"paymentRequest"`
	ServerIdentityKey string                  `json:"serverIdentityKey"`
}

type balanceResponse struct {
	Success bool `json:"success"`
	*funding.Balance
}

type outputsResponse struct {
	Success bool `json:"success"`
	*funding.OutputList
}

type receiveBody struct {
	Tx                json.RawMessage `json:"tx"`
	TxEncoding        string          `json:"txEncoding"`
	SenderIdentityKey string          `json:"senderIdentityKey"`
	DerivationPrefix  string          `json:"derivationPrefix"`
	DerivationSuffix  string          `json:"derivationSuffix"`
	OutputIndex       *int            `json:"outputIndex"`
	Description       string          `json:"description"`
}

type receiveResponse struct {
	Success           bool             `json:"success"`
	Message           string           `json:"message"`
	ServerIdentityKey string           `json:"serverIdentityKey"`
	Receipt           *funding.Receipt `json:"receipt"`
}

// handleServerWallet dispatches on method and ?action=. GET defaults to
// create, POST to receive.
func (g *Gateway) handleServerWallet(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")

	var h http.HandlerFunc
	switch r.Method {
	case http.MethodGet:
		if action == "" {
			action = "create"
		}
		switch action {
		case "status":
			h = g.handleWalletStatus
		case "reset":
			h = g.handleWalletReset
		case "create":
			h = g.handleWalletCreate
		case "request":
			h = g.handleWalletRequest
		case "balance":
			h = g.handleWalletBalance
		case "outputs":
			h = g.handleWalletOutputs
		}
	case http.MethodPost:
		if action == "" {
			action = "receive"
		}
		if action == "receive" {
			h = g.handleWalletReceive
		}
	default:
		g.sendMethodNotAllowed(w, "GET, POST")
		return
	}

	if h == nil {
		g.sendUnknownAction(w, action)
		return
	}
	if operatorActions[action] {
		auth.RequireBearer(g.verifier, g.logger)(h).ServeHTTP(w, r)
		return
	}
	h(w, r)
}

// operatorSubject names the caller of an operator action for logs.
func operatorSubject(r *http.Request) string {
	if op := auth.OperatorFromContext(r.Context()); op != nil {
		return op.Subject
	}
	return "anonymous"
}

func (g *Gateway) handleWalletStatus(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, statusResponse{Success: true, Status: g.sessions.Status()})
}

func (g *Gateway) handleWalletReset(w http.ResponseWriter, r *http.Request) {
	if err := g.sessions.Reset(r.Context()); err != nil {
		g.sendActionError(w, "reset", err)
		return
	}
	g.logger.Info("server wallet reset", "operator", operatorSubject(r))
	g.sendJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Server wallet reset"})
}

func (g *Gateway) handleWalletCreate(w http.ResponseWriter, r *http.Request) {
	wallet, err := g.sessions.EnsureActive(r.Context())
	if err != nil {
		g.sendActionError(w, "create", err)
		return
	}
	params, err := brc29.NetworkParams(wallet.Network)
	if err != nil {
		g.sendActionError(w, "create", err)
		return
	}
	addr, err := brc29.Address(wallet.PrivateKey.PubKey(), params)
	if err != nil {
		g.sendActionError(w, "create", err)
		return
	}
	g.logger.Debug("server wallet ready", "operator", operatorSubject(r), "identity_key", wallet.IdentityKey)
	g.sendJSON(w, http.StatusOK, createResponse{
		Success:           true,
		ServerIdentityKey: wallet.IdentityKey,
		Status: walletStatus{
			State:       g.sessions.State(),
			IdentityKey: wallet.IdentityKey,
			Network:     wallet.Network,
			Address:     addr,
			Source:      wallet.Source,
		},
	})
}

func (g *Gateway) handleWalletRequest(w http.ResponseWriter, r *http.Request) {
	amount := g.config.Wallet.DefaultRequestSatoshis
	if raw := strings.TrimSpace(r.URL.Query().Get("amount")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			g.sendActionError(w, "request", apperr.Validation("Amount must be a positive number of satoshis"))
			return
		}
		amount = n
	}

	wallet, err := g.sessions.EnsureActive(r.Context())
	if err != nil {
		g.sendActionError(w, "request", err)
		return
	}
	req, err := g.funding.CreateRequest(r.Context(), amount, r.URL.Query().Get("memo"))
	if err != nil {
		g.sendActionError(w, "request", err)
		return
	}
	g.sendJSON(w, http.StatusOK, requestResponse{
		Success:           true,
		PaymentRequest:    req,
		ServerIdentityKey: wallet.IdentityKey,
	})
}

func (g *Gateway) handleWalletBalance(w http.ResponseWriter, r *http.Request) {
	if _, err := g.sessions.EnsureActive(r.Context()); err != nil {
		g.sendActionError(w, "balance", err)
		return
	}
	bal, err := g.funding.Balance(r.Context(), r.URL.Query().Get("basket"))
	if err != nil {
		g.sendActionError(w, "balance", err)
		return
	}
	g.sendJSON(w, http.StatusOK, balanceResponse{Success: true, Balance: bal})
}

func (g *Gateway) handleWalletOutputs(w http.ResponseWriter, r *http.Request) {
	if _, err := g.sessions.EnsureActive(r.Context()); err != nil {
		g.sendActionError(w, "outputs", err)
		return
	}
	list, err := g.funding.ListOutputs(r.Context(), r.URL.Query().Get("basket"))
	if err != nil {
		g.sendActionError(w, "outputs", err)
		return
	}
	g.sendJSON(w, http.StatusOK, outputsResponse{Success: true, OutputList: list})
}

func (g *Gateway) handleWalletReceive(w http.ResponseWriter, r *http.Request) {
	wallet, err := g.sessions.EnsureActive(r.Context())
	if err != nil {
		g.sendActionError(w, "receive", err)
		return
	}

	var body receiveBody
	if err := decodeBody(w, r, maxFundingBody, &body); err != nil {
		g.sendActionError(w, "receive", err)
		return
	}
	tx, err := decodeTx(body.Tx, body.TxEncoding)
	if err != nil {
		g.sendActionError(w, "receive", err)
		return
	}

	receipt, err := g.funding.Receive(r.Context(), funding.Incoming{
		Tx:                tx,
		SenderIdentityKey: body.SenderIdentityKey,
		DerivationPrefix:  body.DerivationPrefix,
		DerivationSuffix:  body.DerivationSuffix,
		OutputIndex:       body.OutputIndex,
		Description:       body.Description,
	})
	if err != nil {
		g.sendActionError(w, "receive", err)
		return
	}

	msg := "Payment internalized successfully"
	if receipt.AlreadyInternalized {
		msg = "Payment already internalized"
	}
	g.sendJSON(w, http.StatusOK, receiveResponse{
		Success:           true,
		Message:           msg,
		ServerIdentityKey: wallet.IdentityKey,
		Receipt:           receipt,
	})
}
