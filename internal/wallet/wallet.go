// Package wallet pays lightning invoices through a wallet connect (NIP-47)
// service.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"nostr-universe/internal/metrics"
	"nostr-universe/internal/nips"
	"nostr-universe/internal/nostr"
	"nostr-universe/internal/relay"
	"nostr-universe/internal/types"
)

// PaymentTimeout bounds the wait for the wallet's reply.
const PaymentTimeout = 30 * time.Second

var (
	ErrSignerUnavailable = errors.New("wallet: signer unavailable")
	ErrPaymentTimeout    = errors.New("wallet: timeout, payment might have failed")
	ErrInvalidReply      = errors.New("wallet: invalid payment reply")
)

// PaymentError is an error reported by the wallet service.
type PaymentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *PaymentError) Error() string {
	if e.Message == "" {
		return "wallet: error from the wallet"
	}
	return "wallet: " + e.Message
}

// PayResult is a settled payment.
type PayResult struct {
	Preimage string
}

type payRequest struct {
	Method string `json:"method"`
	Params struct {
		Invoice string `json:"invoice"`
	} `json:"params"`
}

type payResponse struct {
	ResultType string        `json:"result_type"`
	Error      *PaymentError `json:"error"`
	Result     *struct {
		Preimage string `json:"preimage"`
	} `json:"result"`
}

// Wallet sends pay requests over a relay Source.
type Wallet struct {
	source  relay.Source
	signer  Signer
	metrics *metrics.Collector

	// Timeout overrides PaymentTimeout when set.
	Timeout time.Duration
}

func New(source relay.Source, signer Signer, m *metrics.Collector) *Wallet {
	return &Wallet{source: source, signer: signer, metrics: m, Timeout: PaymentTimeout}
}

// PayInvoice asks the wallet to pay invoice. It listens for the reply
// before publishing the request so the reply cannot be missed.
func (w *Wallet) PayInvoice(ctx context.Context, info Info, invoice string) (PayResult, error) {
	res, err := w.payInvoice(ctx, info, invoice)
	var perr *PaymentError
	switch {
	case err == nil:
		w.metrics.RecordPayment("ok")
	case errors.Is(err, ErrPaymentTimeout):
		w.metrics.RecordPayment("timeout")
	case errors.As(err, &perr):
		w.metrics.RecordPayment("rejected")
	default:
		w.metrics.RecordPayment("error")
	}
	return res, err
}

func (w *Wallet) payInvoice(ctx context.Context, info Info, invoice string) (PayResult, error) {
	if w.signer == nil {
		return PayResult{}, ErrSignerUnavailable
	}

	var req payRequest
	req.Method = "pay_invoice"
	req.Params.Invoice = invoice
	body, err := json.Marshal(req)
	if err != nil {
		return PayResult{}, fmt.Errorf("wallet: marshal request: %w", err)
	}
	content, err := w.signer.Encrypt(ctx, info.WalletPubkey, string(body))
	if err != nil {
		return PayResult{}, fmt.Errorf("wallet: encrypt request: %w", err)
	}

	evt := types.Event{
		Kind:      nips.KindNWCRequest,
		CreatedAt: time.Now().Unix(),
		Tags:      [][]string{{"p", info.WalletPubkey}},
		Content:   content,
	}
	if err := w.signer.SignEvent(ctx, &evt); err != nil {
		return PayResult{}, fmt.Errorf("wallet: sign request: %w", err)
	}

	timeout := w.Timeout
	if timeout <= 0 {
		timeout = PaymentTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msgs, err := w.source.Stream(waitCtx, []string{info.Relay}, types.Filter{
		Kinds:   []int{nips.KindNWCResponse},
		Authors: []string{info.WalletPubkey},
		ETags:   []string{evt.ID},
	})
	if err != nil {
		return PayResult{}, fmt.Errorf("wallet: subscribe for reply: %w", err)
	}

	published := false
	publishErr := make(chan error, 1)
	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			switch m.Type {
			case relay.MessageEOSE:
				if published {
					continue
				}
				published = true
				go func() {
					pctx, pcancel := context.WithTimeout(waitCtx, timeout/2)
					defer pcancel()
					if err := w.source.Publish(pctx, info.Relay, evt); err != nil {
						publishErr <- err
					}
				}()
				slog.Debug("wallet: pay request sent", "id", nostr.ShortID(evt.ID), "relay", info.Relay)
			case relay.MessageEvent:
				if !isReplyTo(m.Event, info.WalletPubkey, evt.ID) {
					slog.Debug("wallet: irrelevant event", "id", nostr.ShortID(m.Event.ID))
					continue
				}
				return w.readReply(ctx, m.Event)
			}
		case err := <-publishErr:
			return PayResult{}, fmt.Errorf("wallet: send payment request: %w", err)
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return PayResult{}, ctx.Err()
			}
			return PayResult{}, ErrPaymentTimeout
		}
	}
}

func isReplyTo(evt types.Event, walletPubkey, requestID string) bool {
	if evt.PubKey != walletPubkey {
		return false
	}
	return slices.ContainsFunc(evt.TagsNamed("e"), func(t []string) bool {
		return len(t) >= 2 && t[1] == requestID
	})
}

func (w *Wallet) readReply(ctx context.Context, evt types.Event) (PayResult, error) {
	plain, err := w.signer.Decrypt(ctx, evt.PubKey, evt.Content)
	if err != nil {
		return PayResult{}, fmt.Errorf("wallet: decrypt reply: %w", err)
	}
	var resp payResponse
	if err := json.Unmarshal([]byte(plain), &resp); err != nil {
		return PayResult{}, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	if resp.ResultType != "pay_invoice" {
		return PayResult{}, fmt.Errorf("%w: result type %q", ErrInvalidReply, resp.ResultType)
	}
	if resp.Error != nil {
		return PayResult{}, resp.Error
	}
	if resp.Result == nil {
		return PayResult{}, fmt.Errorf("%w: missing result", ErrInvalidReply)
	}
	return PayResult{Preimage: resp.Result.Preimage}, nil
}
