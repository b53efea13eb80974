package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-universe/internal/nips"
	"nostr-universe/internal/nostr"
	"nostr-universe/internal/relay"
	"nostr-universe/internal/relay/relaytest"
	"nostr-universe/internal/types"
)

const (
	appSecret   = "edc90d06fee17615229c8526dc005d959e4af3bdc0b48c5776c951bcafedec85"
	appPubkey   = "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec"
	walletRelay = "wss://wallet.example.com"
	testInvoice = "lnbc1fakeinvoice"
)

var walletSecret = strings.Repeat("1", 64)

type walletService struct {
	t      *testing.T
	src    *relaytest.Source
	signer *SecretSigner
	reply  func(req payRequest) string
}

// newWalletService answers every pay request published to src with reply.
func newWalletService(t *testing.T, src *relaytest.Source, reply func(req payRequest) string) *walletService {
	signer, err := NewSecretSigner(walletSecret)
	require.NoError(t, err)
	ws := &walletService{t: t, src: src, signer: signer, reply: reply}
	src.OnPublish = ws.handle
	return ws
}

func (ws *walletService) pubkey() string {
	pk, _ := ws.signer.PublicKey(context.Background())
	return pk
}

func (ws *walletService) handle(evt types.Event) {
	ctx := context.Background()
	plain, err := ws.signer.Decrypt(ctx, evt.PubKey, evt.Content)
	if !assert.NoError(ws.t, err) {
		return
	}
	var req payRequest
	if !assert.NoError(ws.t, json.Unmarshal([]byte(plain), &req)) {
		return
	}

	content, err := ws.signer.Encrypt(ctx, evt.PubKey, ws.reply(req))
	if !assert.NoError(ws.t, err) {
		return
	}
	resp := types.Event{
		Kind:      nips.KindNWCResponse,
		CreatedAt: time.Now().Unix(),
		Tags:      [][]string{{"p", evt.PubKey}, {"e", evt.ID}},
		Content:   content,
	}
	if assert.NoError(ws.t, ws.signer.SignEvent(ctx, &resp)) {
		ws.src.Emit(resp)
	}
}

func newWallet(t *testing.T, src *relaytest.Source, ws *walletService) (*Wallet, Info) {
	signer, err := NewSecretSigner(appSecret)
	require.NoError(t, err)
	w := New(src, signer, nil)
	if ws != nil {
		return w, Info{WalletPubkey: ws.pubkey(), Relay: walletRelay, Secret: appSecret}
	}
	// a wallet that never answers still needs a key on the curve
	pk, err := nostr.PublicKeyHex(walletSecret)
	require.NoError(t, err)
	return w, Info{WalletPubkey: pk, Relay: walletRelay, Secret: appSecret}
}

func TestPayInvoice(t *testing.T) {
	src := relaytest.New()
	var got payRequest
	ws := newWalletService(t, src, func(req payRequest) string {
		got = req
		return `{"result_type":"pay_invoice","result":{"preimage":"abc123"}}`
	})
	w, info := newWallet(t, src, ws)

	res, err := w.PayInvoice(context.Background(), info, testInvoice)
	require.NoError(t, err)
	assert.Equal(t, "abc123", res.Preimage)
	assert.Equal(t, "pay_invoice", got.Method)
	assert.Equal(t, testInvoice, got.Params.Invoice)

	published := src.Published()
	require.Len(t, published, 1)
	req := published[0]
	assert.Equal(t, nips.KindNWCRequest, req.Kind)
	assert.Equal(t, appPubkey, req.PubKey)
	assert.Equal(t, info.WalletPubkey, req.TagValue("p"))

	// the reply subscription was opened before publishing
	q := src.Queries()[0]
	assert.Equal(t, []string{req.ID}, q.ETags)
	assert.Equal(t, []string{info.WalletPubkey}, q.Authors)
}

func TestPayInvoiceWalletError(t *testing.T) {
	src := relaytest.New()
	ws := newWalletService(t, src, func(payRequest) string {
		return `{"result_type":"pay_invoice","error":{"code":"INSUFFICIENT_BALANCE","message":"not enough sats"}}`
	})
	w, info := newWallet(t, src, ws)

	_, err := w.PayInvoice(context.Background(), info, testInvoice)
	var perr *PaymentError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "INSUFFICIENT_BALANCE", perr.Code)
	assert.Equal(t, "not enough sats", perr.Message)
}

func TestPayInvoiceInvalidReply(t *testing.T) {
	src := relaytest.New()
	ws := newWalletService(t, src, func(payRequest) string {
		return `{"result_type":"get_balance","result":{"balance":1}}`
	})
	w, info := newWallet(t, src, ws)

	_, err := w.PayInvoice(context.Background(), info, testInvoice)
	assert.ErrorIs(t, err, ErrInvalidReply)
}

func TestPayInvoiceTimeout(t *testing.T) {
	src := relaytest.New()
	w, info := newWallet(t, src, nil)
	w.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := w.PayInvoice(context.Background(), info, testInvoice)
	assert.ErrorIs(t, err, ErrPaymentTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, src.Published(), 1)
	assert.Eventually(t, func() bool { return src.StreamCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPayInvoiceNoSigner(t *testing.T) {
	w := New(relaytest.New(), nil, nil)
	_, err := w.PayInvoice(context.Background(), Info{}, testInvoice)
	assert.ErrorIs(t, err, ErrSignerUnavailable)
}

func TestPayInvoiceRelayDown(t *testing.T) {
	src := relaytest.New()
	src.SetFailing(true)
	w, info := newWallet(t, src, nil)
	_, err := w.PayInvoice(context.Background(), info, testInvoice)
	assert.ErrorIs(t, err, relay.ErrNoRelays)
}

func TestSecretSignerRoundTrip(t *testing.T) {
	app, err := NewSecretSigner(appSecret)
	require.NoError(t, err)
	svc, err := NewSecretSigner(walletSecret)
	require.NoError(t, err)
	ctx := context.Background()

	pk, err := app.PublicKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, appPubkey, pk)

	svcPub, _ := svc.PublicKey(ctx)
	enc, err := app.Encrypt(ctx, svcPub, "hello")
	require.NoError(t, err)
	plain, err := svc.Decrypt(ctx, appPubkey, enc)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)

	_, err = NewSecretSigner("nothex")
	assert.Error(t, err)
}

func TestParseURI(t *testing.T) {
	wallet := strings.Repeat("ab", 32)
	info, err := ParseURI("nostr+walletconnect://" + wallet + "?relay=wss%3A%2F%2Frelay.example.com&secret=" + appSecret + "&lud16=me%40example.com")
	require.NoError(t, err)
	assert.Equal(t, Info{WalletPubkey: wallet, Relay: "wss://relay.example.com", Secret: appSecret, Lud16: "me@example.com"}, info)

	bad := []string{
		"https://" + wallet + "?relay=wss://r&secret=" + appSecret,
		"nostr+walletconnect://short?relay=wss://r&secret=" + appSecret,
		"nostr+walletconnect://" + wallet + "?secret=" + appSecret,
		"nostr+walletconnect://" + wallet + "?relay=https://r&secret=" + appSecret,
		"nostr+walletconnect://" + wallet + "?relay=wss://r",
		"nostr+walletconnect://" + wallet + "?relay=wss://r&secret=zz",
	}
	for _, uri := range bad {
		_, err := ParseURI(uri)
		assert.Error(t, err, uri)
	}
}

func TestIsReplyTo(t *testing.T) {
	wallet := strings.Repeat("ab", 32)
	reply := types.Event{PubKey: wallet, Tags: [][]string{{"p", appPubkey}, {"e", "req"}}}
	assert.True(t, isReplyTo(reply, wallet, "req"))
	assert.False(t, isReplyTo(reply, wallet, "other"))
	assert.False(t, isReplyTo(reply, appPubkey, "req"))
	assert.False(t, isReplyTo(types.Event{PubKey: wallet, Tags: [][]string{{"e"}}}, wallet, "req"))
}
