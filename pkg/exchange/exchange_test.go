package exchange

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/channel"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/delivery"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/envelope"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/packaging"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/queue"
)

type testSigner struct {
	key  crypto.Signer
	cert *x509.Certificate
}

func (s *testSigner) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return s.key.Sign(rand, digest, opts)
}
func (s *testSigner) Public() crypto.PublicKey       { return s.key.Public() }
func (s *testSigner) Certificate() *x509.Certificate { return s.cert }
func (s *testSigner) Algorithm() string              { return packaging.AlgorithmRSASHA256 }

func selfSign(t *testing.T, key *rsa.PrivateKey) *x509.Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "TEST VIRKSOMHET"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

type stubLookup struct {
	caps map[string]*channel.Capabilities
	err  error
}

func (s *stubLookup) Lookup(ctx context.Context, receiverID string) (*channel.Capabilities, error) {
	if s.err != nil {
		return nil, s.err
	}
	caps, ok := s.caps[receiverID]
	if !ok {
		return nil, errors.New("not registered")
	}
	return caps, nil
}

type fixture struct {
	service *Service
	store   *queue.MemoryStore
}

func newFixture(t *testing.T, lookup channel.CapabilityLookup, rules delivery.ReceiptRules, acceptEmpty bool) *fixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer := &testSigner{key: key, cert: selfSign(t, key)}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := queue.NewMemoryStore()
	scheduler := queue.NewScheduler(store, delivery.NewRegistry(), queue.DefaultConfig(), logger)
	toggles := channel.Toggles{DPO: true, DPF: true, DPV: true, DPIDigital: true, DPIPrint: true}

	service, err := NewService(Config{
		Selector:           channel.NewSelector(lookup, toggles, logger),
		Lookup:             lookup,
		Packager:           packaging.NewPackager(signer),
		Scheduler:          scheduler,
		Rules:              rules,
		AcceptEmptyPayload: acceptEmpty,
		Logger:             logger,
	})
	require.NoError(t, err)
	return &fixture{service: service, store: store}
}

func receiverLookup(t *testing.T, channels ...channel.Channel) *stubLookup {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &stubLookup{caps: map[string]*channel.Capabilities{
		"974720760": {Channels: channels, Certificate: selfSign(t, key)},
		"991825827": {Channels: channels, Certificate: selfSign(t, key)},
	}}
}

func testFiles() []packaging.File {
	return []packaging.File{
		{Name: "arkivmelding.xml", Content: []byte("<arkivmelding/>"), MimeType: "application/xml"},
	}
}

func TestSubmit_EnqueuesOnPreferredChannel(t *testing.T) {
	f := newFixture(t, receiverLookup(t, channel.DPO, channel.DPF), delivery.ReceiptRules{}, false)

	res, err := f.service.Submit(context.Background(), Submission{
		SenderID:     "991825827",
		ReceiverID:   "974720760",
		DocumentType: envelope.TypeArkivmelding,
		PayloadRef:   "ref-1",
		Files:        testFiles(),
	})
	require.NoError(t, err)
	assert.True(t, res.Enqueued)
	assert.Equal(t, channel.DPO, res.Channel)
	require.NotEmpty(t, res.ConversationID)

	entry, err := f.store.Get(context.Background(), queue.EntryID(res.ConversationID, channel.DPO))
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, entry.Status)
	assert.Equal(t, "974720760", entry.Envelope.ReceiverID)
	require.NotNil(t, entry.Package)
	assert.Equal(t, entry.Package.Checksum, entry.Checksum)
}

func TestSubmit_KeepsCallerConversationID(t *testing.T) {
	f := newFixture(t, receiverLookup(t, channel.DPF), delivery.ReceiptRules{}, false)

	res, err := f.service.Submit(context.Background(), Submission{
		SenderID:       "991825827",
		ReceiverID:     "974720760",
		ConversationID: "conv-42",
		DocumentType:   envelope.TypeArkivmelding,
		Files:          testFiles(),
	})
	require.NoError(t, err)
	assert.Equal(t, "conv-42", res.ConversationID)
	assert.Equal(t, channel.DPF, res.Channel)
}

func TestSubmit_EmptyPayloadRejected(t *testing.T) {
	f := newFixture(t, receiverLookup(t, channel.DPO), delivery.ReceiptRules{}, false)

	_, err := f.service.Submit(context.Background(), Submission{
		SenderID:     "991825827",
		ReceiverID:   "974720760",
		DocumentType: envelope.TypeArkivmelding,
	})
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestSubmit_EmptyPayloadAcceptedUnderToggle(t *testing.T) {
	f := newFixture(t, receiverLookup(t, channel.DPO), delivery.ReceiptRules{}, true)

	res, err := f.service.Submit(context.Background(), Submission{
		SenderID:       "991825827",
		ReceiverID:     "974720760",
		ConversationID: "conv-empty",
		DocumentType:   envelope.TypeArkivmelding,
	})
	require.NoError(t, err)
	assert.False(t, res.Enqueued)
	assert.Equal(t, "conv-empty", res.ConversationID)

	entries, err := f.store.FindByConversation(context.Background(), "conv-empty")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmit_PersonNumberRejected(t *testing.T) {
	f := newFixture(t, receiverLookup(t, channel.DPO), delivery.ReceiptRules{}, false)

	_, err := f.service.Submit(context.Background(), Submission{
		SenderID:     "991825827",
		ReceiverID:   "01017012345",
		DocumentType: envelope.TypeArkivmelding,
		Files:        testFiles(),
	})
	var invalid *envelope.InvalidPartyError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "receiver", invalid.Party)
}

func TestSubmit_NoViableChannel(t *testing.T) {
	lookup := receiverLookup(t, channel.DPV)
	f := newFixture(t, lookup, delivery.ReceiptRules{}, false)

	// arkivmelding may only travel on DPO or DPF; the receiver has neither.
	_, err := f.service.Submit(context.Background(), Submission{
		SenderID:     "991825827",
		ReceiverID:   "974720760",
		DocumentType: envelope.TypeArkivmelding,
		Files:        testFiles(),
	})
	assert.ErrorIs(t, err, channel.ErrNoViableChannel)
}

func TestSubmit_MissingCertificate(t *testing.T) {
	lookup := &stubLookup{caps: map[string]*channel.Capabilities{
		"974720760": {Channels: []channel.Channel{channel.DPO}},
	}}
	f := newFixture(t, lookup, delivery.ReceiptRules{}, false)

	_, err := f.service.Submit(context.Background(), Submission{
		SenderID:     "991825827",
		ReceiverID:   "974720760",
		DocumentType: envelope.TypeArkivmelding,
		Files:        testFiles(),
	})
	assert.ErrorIs(t, err, ErrNoCertificate)
}

func TestSubmit_ReceiptToFallbackSenderDiscarded(t *testing.T) {
	rules := delivery.ReceiptRules{FallbackSenderID: "974720760"}
	f := newFixture(t, receiverLookup(t, channel.DPO), rules, false)

	res, err := f.service.Submit(context.Background(), Submission{
		SenderID:       "991825827",
		ReceiverID:     "974720760",
		ConversationID: "conv-receipt",
		DocumentType:   envelope.TypeArkivmeldingKvittering,
		Files:          testFiles(),
	})
	require.NoError(t, err)
	assert.False(t, res.Enqueued)

	entries, err := f.store.FindByConversation(context.Background(), "conv-receipt")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmit_ReceiptToUnregisteredFallbackSenderDiscarded(t *testing.T) {
	// The fallback sender has no registry entry of its own; the discard must
	// happen before any lookup, so no LookupError or NoViableChannelError
	// surfaces.
	lookup := &stubLookup{caps: map[string]*channel.Capabilities{}}
	rules := delivery.ReceiptRules{FallbackSenderID: "974720760"}
	f := newFixture(t, lookup, rules, false)

	res, err := f.service.Submit(context.Background(), Submission{
		SenderID:       "991825827",
		ReceiverID:     "974720760",
		ConversationID: "conv-fallback",
		DocumentType:   envelope.TypeArkivmeldingKvittering,
		Files:          testFiles(),
	})
	require.NoError(t, err)
	assert.False(t, res.Enqueued)

	entries, err := f.store.FindByConversation(context.Background(), "conv-fallback")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmit_ReceiptSwappedForLocalAcknowledgment(t *testing.T) {
	rules := delivery.ReceiptRules{NoarkType: delivery.NoarkP360}
	f := newFixture(t, receiverLookup(t, channel.DPO), rules, false)

	res, err := f.service.Submit(context.Background(), Submission{
		SenderID:       "991825827",
		ReceiverID:     "974720760",
		ConversationID: "conv-swap",
		DocumentType:   envelope.TypeArkivmeldingKvittering,
		Files:          testFiles(),
	})
	require.NoError(t, err)
	require.True(t, res.Enqueued)

	entry, err := f.store.Get(context.Background(), queue.EntryID("conv-swap", channel.DPO))
	require.NoError(t, err)
	assert.Equal(t, "974720760", entry.Envelope.SenderID)
	assert.Equal(t, "991825827", entry.Envelope.ReceiverID)
}

func TestCanReceive(t *testing.T) {
	f := newFixture(t, receiverLookup(t, channel.DPO), delivery.ReceiptRules{}, false)

	assert.True(t, f.service.CanReceive(context.Background(), "974720760", envelope.TypeArkivmelding))
	assert.False(t, f.service.CanReceive(context.Background(), "01017012345", envelope.TypeArkivmelding))
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Config{})
	assert.Error(t, err)
}
