package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/envelope"
)

type stubLookup struct {
	caps *Capabilities
	err  error
}

func (s *stubLookup) Lookup(ctx context.Context, receiverID string) (*Capabilities, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.caps, nil
}

func allToggles() Toggles {
	return Toggles{DPO: true, DPF: true, DPV: true, DPIDigital: true, DPIPrint: true}
}

func TestSelect_PreferenceOrder(t *testing.T) {
	lookup := &stubLookup{caps: &Capabilities{Channels: []Channel{DPF, DPO}}}
	s := NewSelector(lookup, allToggles(), nil)

	channels, err := s.Select(context.Background(), "991825827", envelope.TypeArkivmelding)
	require.NoError(t, err)
	assert.Equal(t, []Channel{DPO, DPF}, channels)
}

func TestSelect_PrintOnlyWhenNoDigitalViable(t *testing.T) {
	// Receiver registered for digital mailbox delivery, but the digital
	// channel is switched off locally. Print is the only way out.
	toggles := allToggles()
	toggles.DPIDigital = false
	lookup := &stubLookup{caps: &Capabilities{Channels: []Channel{DPIDigital}}}
	s := NewSelector(lookup, toggles, nil)

	channels, err := s.Select(context.Background(), "991825827", envelope.TypeDigital)
	require.NoError(t, err)
	assert.Equal(t, []Channel{DPIPrint}, channels)
}

func TestSelect_PrintNeverShadowsDigital(t *testing.T) {
	lookup := &stubLookup{caps: &Capabilities{Channels: []Channel{DPIDigital}}}
	s := NewSelector(lookup, allToggles(), nil)

	channels, err := s.Select(context.Background(), "991825827", envelope.TypeDigital)
	require.NoError(t, err)
	assert.Equal(t, []Channel{DPIDigital}, channels)
	assert.NotContains(t, channels, DPIPrint)
}

func TestSelect_NoViableChannel(t *testing.T) {
	toggles := allToggles()
	toggles.DPIPrint = false
	lookup := &stubLookup{caps: &Capabilities{Channels: nil}}
	s := NewSelector(lookup, toggles, nil)

	_, err := s.Select(context.Background(), "991825827", envelope.TypeArkivmelding)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoViableChannel)

	var nve *NoViableChannelError
	require.ErrorAs(t, err, &nve)
	assert.Equal(t, "991825827", nve.ReceiverID)
}

func TestSelect_LookupFailure(t *testing.T) {
	cause := errors.New("registry unavailable")
	s := NewSelector(&stubLookup{err: cause}, allToggles(), nil)

	_, err := s.Select(context.Background(), "991825827", envelope.TypeArkivmelding)
	require.Error(t, err)

	var le *LookupError
	require.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, cause)
}

func TestSelect_DocumentTypeRestriction(t *testing.T) {
	// A receiver registered for every channel still only gets the channels
	// the document type may travel on.
	lookup := &stubLookup{caps: &Capabilities{
		Channels: []Channel{DPO, DPF, DPV, DPIDigital},
	}}
	s := NewSelector(lookup, allToggles(), nil)

	tests := []struct {
		docType  envelope.DocumentType
		expected []Channel
	}{
		{envelope.TypeArkivmelding, []Channel{DPO, DPF}},
		{envelope.TypeDigital, []Channel{DPIDigital, DPV}},
		{envelope.TypeDigitalDPV, []Channel{DPV}},
		{envelope.TypePrint, []Channel{DPIPrint}},
	}
	for _, tt := range tests {
		t.Run(string(tt.docType), func(t *testing.T) {
			channels, err := s.Select(context.Background(), "991825827", tt.docType)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, channels)
		})
	}
}

func TestCanReceive(t *testing.T) {
	lookup := &stubLookup{caps: &Capabilities{Channels: []Channel{DPO}}}
	s := NewSelector(lookup, allToggles(), nil)

	assert.True(t, s.CanReceive(context.Background(), "991825827", envelope.TypeArkivmelding))
	assert.True(t, s.CanReceive(context.Background(), "0192:991825827", envelope.TypeArkivmelding))

	// Person numbers are never deliverable organizations.
	assert.False(t, s.CanReceive(context.Background(), "01017012345", envelope.TypeArkivmelding))
	// Invalid check digit.
	assert.False(t, s.CanReceive(context.Background(), "991825828", envelope.TypeArkivmelding))
}

func TestCanReceive_LookupFailure(t *testing.T) {
	s := NewSelector(&stubLookup{err: errors.New("down")}, allToggles(), nil)
	assert.False(t, s.CanReceive(context.Background(), "991825827", envelope.TypeArkivmelding))
}

func TestChannelProperties(t *testing.T) {
	assert.True(t, DPO.Terminal())
	assert.True(t, DPIPrint.Terminal())
	assert.False(t, DPIDigital.Terminal())

	next, ok := DPIDigital.FallsBackTo()
	require.True(t, ok)
	assert.Equal(t, DPIPrint, next)

	_, ok = DPO.FallsBackTo()
	assert.False(t, ok)

	assert.True(t, DPV.Valid())
	assert.False(t, Channel("SMTP").Valid())
}
