package service

import (
	"context"
	"sync"
	"testing"

	"github.com/bactalk/bacstack/internal/apdu"
	"github.com/bactalk/bacstack/internal/tag"
	"github.com/bactalk/bacstack/internal/tsm"
	"github.com/bactalk/bacstack/pkg/objects"
)

type fakeAnnouncer struct {
	mu   sync.Mutex
	sent []struct {
		choice uint8
		data   []byte
	}
}

func (f *fakeAnnouncer) AnnounceUnconfirmed(ctx context.Context, choice uint8, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, struct {
		choice uint8
		data   []byte
	}{choice, data})
	return nil
}

type recordingNotifier struct {
	peers []string
}

func (n *recordingNotifier) NotifyCOV(ctx context.Context, peer string, subscriberProcessID uint32, confirmed bool, objID tag.ObjectIdentifier) {
	n.peers = append(n.peers, peer)
}

func newTestDatabase() *objects.Store {
	store := objects.NewStore()
	ai := objects.NewSimpleObject(tag.ObjectIdentifier{Type: 0, Instance: 1})
	ai.Set(PropObjectName, tag.EncodeCharacterString("AI-1"), false)
	ai.Set(PropPresentValue, tag.EncodeReal(72.5), true)
	store.Add(ai)
	return store
}

func TestHandleReadPropertyServesValue(t *testing.T) {
	h := NewHandlers(newTestDatabase(), 1001, nil)
	result, err := h.handleReadProperty(context.Background(), "peer", EncodeReadPropertyRequest(ReadPropertyRequest{
		ObjectID:   tag.ObjectIdentifier{Type: 0, Instance: 1},
		PropertyID: PropPresentValue,
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	ack, err := DecodeReadPropertyACK(result.ComplexPayload)
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	value, _, err := tag.DecodePrimitive(ack.Value, 0, tag.AppReal)
	if err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if value.(float32) != 72.5 {
		t.Fatalf("got %v, want 72.5", value)
	}
}

func TestHandleReadPropertyUnknownObjectReturnsApplicationError(t *testing.T) {
	h := NewHandlers(newTestDatabase(), 1001, nil)
	_, err := h.handleReadProperty(context.Background(), "peer", EncodeReadPropertyRequest(ReadPropertyRequest{
		ObjectID:   tag.ObjectIdentifier{Type: 0, Instance: 999},
		PropertyID: PropPresentValue,
	}))
	appErr, ok := err.(*apdu.ApplicationError)
	if !ok {
		t.Fatalf("got %T, want *apdu.ApplicationError", err)
	}
	if appErr.ErrorCode != ErrorCodeUnknownObject {
		t.Fatalf("got error code %d, want %d", appErr.ErrorCode, ErrorCodeUnknownObject)
	}
}

func TestHandleWritePropertyAppliesCommandableValue(t *testing.T) {
	db := newTestDatabase()
	h := NewHandlers(db, 1001, nil)
	result, err := h.handleWriteProperty(context.Background(), "peer", EncodeWritePropertyRequest(WritePropertyRequest{
		ObjectID:   tag.ObjectIdentifier{Type: 0, Instance: 1},
		PropertyID: PropPresentValue,
		Value:      tag.EncodeReal(80.0),
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !result.Simple {
		t.Fatalf("expected simple ack")
	}
	obj, _ := db.Get(tag.ObjectIdentifier{Type: 0, Instance: 1})
	value, err := obj.ReadProperty(PropPresentValue, nil)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	decoded, _, _ := tag.DecodePrimitive(value, 0, tag.AppReal)
	if decoded.(float32) != 80.0 {
		t.Fatalf("got %v, want 80.0", decoded)
	}
}

func TestHandleWritePropertyRejectsNonCommandable(t *testing.T) {
	h := NewHandlers(newTestDatabase(), 1001, nil)
	_, err := h.handleWriteProperty(context.Background(), "peer", EncodeWritePropertyRequest(WritePropertyRequest{
		ObjectID:   tag.ObjectIdentifier{Type: 0, Instance: 1},
		PropertyID: PropObjectName,
		Value:      tag.EncodeCharacterString("renamed"),
	}))
	if _, ok := err.(*apdu.ApplicationError); !ok {
		t.Fatalf("got %T, want *apdu.ApplicationError", err)
	}
}

func TestHandleReadPropertyMultipleExpandsAll(t *testing.T) {
	h := NewHandlers(newTestDatabase(), 1001, nil)
	result, err := h.handleReadPropertyMultiple(context.Background(), "peer", EncodeReadPropertyMultipleRequest([]ReadAccessSpecification{
		{
			ObjectID:           tag.ObjectIdentifier{Type: 0, Instance: 1},
			PropertyReferences: []PropertyReference{{PropertyID: PropPropertyList}},
		},
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	decoded, err := DecodeReadPropertyMultipleACK(result.ComplexPayload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || len(decoded[0].Results) != 2 {
		t.Fatalf("got %+v", decoded)
	}
}

func TestHandleWhoIsAnnouncesWithinRange(t *testing.T) {
	announcer := &fakeAnnouncer{}
	h := NewHandlers(newTestDatabase(), 1001, announcer)
	low, high := uint32(1000), uint32(2000)
	_, err := h.handleWhoIs(context.Background(), "peer", EncodeWhoIs(WhoIsRequest{LowLimit: &low, HighLimit: &high}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(announcer.sent) != 1 || announcer.sent[0].choice != ChoiceIAm {
		t.Fatalf("expected one i-am announcement, got %+v", announcer.sent)
	}
}

func TestHandleWhoIsSkipsOutOfRange(t *testing.T) {
	announcer := &fakeAnnouncer{}
	h := NewHandlers(newTestDatabase(), 1001, announcer)
	low, high := uint32(1), uint32(2)
	_, err := h.handleWhoIs(context.Background(), "peer", EncodeWhoIs(WhoIsRequest{LowLimit: &low, HighLimit: &high}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(announcer.sent) != 0 {
		t.Fatalf("expected no announcement, got %+v", announcer.sent)
	}
}

func TestHandleWhoHasByNameAnnouncesIHave(t *testing.T) {
	announcer := &fakeAnnouncer{}
	h := NewHandlers(newTestDatabase(), 1001, announcer)
	name := "AI-1"
	_, err := h.handleWhoHas(context.Background(), "peer", EncodeWhoHas(WhoHasRequest{ObjectName: &name}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(announcer.sent) != 1 || announcer.sent[0].choice != ChoiceIHave {
		t.Fatalf("expected one i-have announcement, got %+v", announcer.sent)
	}
}

func TestHandleSubscribeCOVTracksSubscription(t *testing.T) {
	h := NewHandlers(newTestDatabase(), 1001, nil)
	confirmed := false
	lifetime := uint32(300)
	_, err := h.handleSubscribeCOV(context.Background(), "peer", EncodeSubscribeCOVRequest(SubscribeCOVRequest{
		SubscriberProcessID:          1,
		MonitoredObjectID:            tag.ObjectIdentifier{Type: 0, Instance: 1},
		IssueConfirmedNotifications: &confirmed,
		Lifetime:                     &lifetime,
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	notifier := &recordingNotifier{}
	h.CovNotifier = notifier
	h.notifyCOV(context.Background(), tag.ObjectIdentifier{Type: 0, Instance: 1})
	matched := notifier.peers
	if len(matched) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", len(matched))
	}
}

func TestRegisterAllWiresEveryService(t *testing.T) {
	h := NewHandlers(newTestDatabase(), 1001, &fakeAnnouncer{})
	reg := tsm.NewServiceRegistry()
	h.RegisterAll(reg)
	_, err := reg.DispatchConfirmed(context.Background(), "peer", 1, ChoiceReadProperty, EncodeReadPropertyRequest(ReadPropertyRequest{
		ObjectID:   tag.ObjectIdentifier{Type: 0, Instance: 1},
		PropertyID: PropPresentValue,
	}))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := reg.DispatchUnconfirmed(context.Background(), "peer", ChoiceWhoIs, EncodeWhoIs(WhoIsRequest{})); err != nil {
		t.Fatalf("dispatch unconfirmed: %v", err)
	}
}
