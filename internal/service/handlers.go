package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/bactalk/bacstack/internal/apdu"
	"github.com/bactalk/bacstack/internal/logger"
	"github.com/bactalk/bacstack/internal/tag"
	"github.com/bactalk/bacstack/internal/tsm"
	"github.com/bactalk/bacstack/pkg/objects"
)

// objectTypeDevice is the BACnet standard object type for a Device object
// (clause 12.11, Table 21-1's BACnetObjectType enumeration).
const objectTypeDevice uint16 = 8

// deviceOID builds this device's own object identifier from its instance
// number.
func deviceOID(instance uint32) tag.ObjectIdentifier {
	return tag.ObjectIdentifier{Type: objectTypeDevice, Instance: instance}
}

// decodeApplicationCharacterString decodes an application-tagged Character
// String primitive, the form object properties such as Object-Name are
// stored in.
func decodeApplicationCharacterString(buf []byte) (string, int, error) {
	v, next, err := tag.DecodePrimitive(buf, 0, tag.AppCharacterString)
	if err != nil {
		return "", 0, err
	}
	return v.(string), next, nil
}

// Announcer broadcasts an unconfirmed service request (I-Am, in response
// to Who-Is) onto every local port. It is the one piece of transport the
// service layer reaches out for, since discovery replies are never
// addressed to a single peer.
type Announcer interface {
	AnnounceUnconfirmed(ctx context.Context, choice uint8, serviceData []byte) error
}

// CovNotifier pushes one COV notification to a single subscribed peer.
// confirmed selects Confirmed-COV-Notification vs. the unconfirmed form,
// matching the subscription's own IssueConfirmedNotifications choice.
type CovNotifier interface {
	NotifyCOV(ctx context.Context, peer string, subscriberProcessID uint32, confirmed bool, objID tag.ObjectIdentifier)
}

// covSubscription is one active SubscribeCOV registration.
type covSubscription struct {
	subscriberProcessID uint32
	peer                string
	monitoredObjectID   [2]uint32 // {type, instance}, keyed form of tag.ObjectIdentifier
	confirmed           bool
}

// Handlers bridges the confirmed/unconfirmed service codecs in this
// package to an objects.Database, and registers every service this stack
// implements against a tsm.ServiceRegistry (clause 21's dispatch, mirrored
// on the procedure-table pattern the rest of this stack's protocol layers
// use).
type Handlers struct {
	Database     objects.Database
	DeviceID     uint32 // this device object's instance number
	MaxAPDU      uint32
	Segmentation uint32
	VendorID     uint32
	Announcer    Announcer
	CovNotifier  CovNotifier

	// Files and Factory are optional; when nil, AtomicReadFile/
	// AtomicWriteFile and CreateObject are rejected rather than panicking.
	Files   objects.FileStore
	Factory objects.Factory

	mu   sync.Mutex
	subs []covSubscription
}

// NewHandlers builds a Handlers bound to db, announcing as deviceInstance.
func NewHandlers(db objects.Database, deviceInstance uint32, announcer Announcer) *Handlers {
	return &Handlers{
		Database:     db,
		DeviceID:     deviceInstance,
		MaxAPDU:      1476,
		Segmentation: SegmentationBoth,
		VendorID:     0,
		Announcer:    announcer,
	}
}

// RegisterAll binds every service this package implements to reg.
func (h *Handlers) RegisterAll(reg *tsm.ServiceRegistry) {
	reg.RegisterConfirmed(ChoiceReadProperty, "ReadProperty", h.handleReadProperty)
	reg.RegisterConfirmed(ChoiceWriteProperty, "WriteProperty", h.handleWriteProperty)
	reg.RegisterConfirmed(ChoiceReadPropertyMultiple, "ReadPropertyMultiple", h.handleReadPropertyMultiple)
	reg.RegisterConfirmed(ChoiceWritePropertyMultiple, "WritePropertyMultiple", h.handleWritePropertyMultiple)
	reg.RegisterConfirmed(ChoiceSubscribeCOV, "SubscribeCOV", h.handleSubscribeCOV)
	reg.RegisterConfirmed(ChoiceDeviceCommunicationControl, "DeviceCommunicationControl", h.handleDeviceCommunicationControl)
	reg.RegisterConfirmed(ChoiceReinitializeDevice, "ReinitializeDevice", h.handleReinitializeDevice)
	reg.RegisterConfirmed(ChoiceCreateObject, "CreateObject", h.handleCreateObject)
	reg.RegisterConfirmed(ChoiceDeleteObject, "DeleteObject", h.handleDeleteObject)
	reg.RegisterConfirmed(ChoiceAtomicReadFile, "AtomicReadFile", h.handleAtomicReadFile)
	reg.RegisterConfirmed(ChoiceAtomicWriteFile, "AtomicWriteFile", h.handleAtomicWriteFile)

	reg.RegisterUnconfirmed(ChoiceWhoIs, "Who-Is", h.handleWhoIs)
	reg.RegisterUnconfirmed(ChoiceWhoHas, "Who-Has", h.handleWhoHas)
	reg.RegisterUnconfirmed(ChoiceIAm, "I-Am", h.handleIAm)
	reg.RegisterUnconfirmed(ChoiceIHave, "I-Have", h.handleIHave)
	reg.RegisterUnconfirmed(ChoiceUnconfirmedCOVNotification, "UnconfirmedCOVNotification", h.handleUnconfirmedCOVNotification)
	reg.RegisterUnconfirmed(ChoiceTimeSynchronization, "TimeSynchronization", h.handleTimeSynchronization)
	reg.RegisterUnconfirmed(ChoiceUTCTimeSynchronization, "UTCTimeSynchronization", h.handleTimeSynchronization)
	reg.RegisterUnconfirmed(ChoiceTextMessage, "TextMessage", h.handleTextMessage)
}

func (h *Handlers) handleReadProperty(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	req, err := DecodeReadPropertyRequest(data)
	if err != nil {
		return nil, &apdu.RejectError{Reason: apdu.RejectInvalidTag}
	}
	obj, ok := h.Database.Get(req.ObjectID)
	if !ok {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceReadProperty, ErrorClass: ErrorClassObject, ErrorCode: ErrorCodeUnknownObject}
	}
	value, err := obj.ReadProperty(req.PropertyID, req.ArrayIndex)
	if err != nil {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceReadProperty, ErrorClass: ErrorClassProperty, ErrorCode: ErrorCodeUnknownProperty}
	}
	ack := EncodeReadPropertyACK(ReadPropertyACK{
		ObjectID:   req.ObjectID,
		PropertyID: req.PropertyID,
		ArrayIndex: req.ArrayIndex,
		Value:      value,
	})
	logger.DebugCtx(ctx, "read-property served", logger.PeerStr(peer), logger.PropertyID(req.PropertyID))
	return &tsm.ServiceResult{ComplexPayload: ack}, nil
}

func (h *Handlers) handleWriteProperty(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	req, err := DecodeWritePropertyRequest(data)
	if err != nil {
		return nil, &apdu.RejectError{Reason: apdu.RejectInvalidTag}
	}
	obj, ok := h.Database.Get(req.ObjectID)
	if !ok {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceWriteProperty, ErrorClass: ErrorClassObject, ErrorCode: ErrorCodeUnknownObject}
	}
	if err := obj.WriteProperty(req.PropertyID, req.Value, req.ArrayIndex, req.Priority); err != nil {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceWriteProperty, ErrorClass: ErrorClassProperty, ErrorCode: ErrorCodeWriteAccessDenied}
	}
	logger.DebugCtx(ctx, "write-property applied", logger.PeerStr(peer), logger.PropertyID(req.PropertyID))
	h.notifyCOV(ctx, req.ObjectID)
	return &tsm.ServiceResult{Simple: true}, nil
}

func (h *Handlers) handleReadPropertyMultiple(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	specs, err := DecodeReadPropertyMultipleRequest(data)
	if err != nil {
		return nil, &apdu.RejectError{Reason: apdu.RejectInvalidTag}
	}
	results := make([]ReadAccessResult, 0, len(specs))
	for _, spec := range specs {
		obj, ok := h.Database.Get(spec.ObjectID)
		if !ok {
			class, code := ErrorClassObject, ErrorCodeUnknownObject
			results = append(results, ReadAccessResult{
				ObjectID: spec.ObjectID,
				Results: []PropertyResult{{
					PropertyID: PropPropertyList,
					ErrorClass: &class,
					ErrorCode:  &code,
				}},
			})
			continue
		}
		refs := spec.PropertyReferences
		if len(refs) == 1 && refs[0].PropertyID == PropPropertyList && refs[0].ArrayIndex == nil {
			refs = expandAll(obj)
		}
		var propResults []PropertyResult
		for _, ref := range refs {
			value, err := obj.ReadProperty(ref.PropertyID, ref.ArrayIndex)
			if err != nil {
				class, code := ErrorClassProperty, ErrorCodeUnknownProperty
				propResults = append(propResults, PropertyResult{PropertyID: ref.PropertyID, ArrayIndex: ref.ArrayIndex, ErrorClass: &class, ErrorCode: &code})
				continue
			}
			propResults = append(propResults, PropertyResult{PropertyID: ref.PropertyID, ArrayIndex: ref.ArrayIndex, Value: value})
		}
		results = append(results, ReadAccessResult{ObjectID: spec.ObjectID, Results: propResults})
	}
	logger.DebugCtx(ctx, "read-property-multiple served", logger.PeerStr(peer), logger.PropertyID(uint32(len(results))))
	return &tsm.ServiceResult{ComplexPayload: EncodeReadPropertyMultipleACK(results)}, nil
}

// expandAll resolves the PROPERTY_LIST(ALL) shorthand to every property the
// object declares.
func expandAll(obj objects.Object) []PropertyReference {
	ids := obj.Properties()
	refs := make([]PropertyReference, len(ids))
	for i, id := range ids {
		refs[i] = PropertyReference{PropertyID: id}
	}
	return refs
}

func (h *Handlers) handleWritePropertyMultiple(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	specs, err := DecodeWritePropertyMultipleRequest(data)
	if err != nil {
		return nil, &apdu.RejectError{Reason: apdu.RejectInvalidTag}
	}
	// Clause 15.10: all writes in the request succeed, or none do.
	for _, spec := range specs {
		obj, ok := h.Database.Get(spec.ObjectID)
		if !ok {
			return nil, &apdu.ApplicationError{ServiceChoice: ChoiceWritePropertyMultiple, ErrorClass: ErrorClassObject, ErrorCode: ErrorCodeUnknownObject}
		}
		for _, v := range spec.Values {
			if err := obj.WriteProperty(v.PropertyID, v.Value, v.ArrayIndex, v.Priority); err != nil {
				return nil, &apdu.ApplicationError{ServiceChoice: ChoiceWritePropertyMultiple, ErrorClass: ErrorClassProperty, ErrorCode: ErrorCodeWriteAccessDenied}
			}
		}
	}
	for _, spec := range specs {
		h.notifyCOV(ctx, spec.ObjectID)
	}
	logger.DebugCtx(ctx, "write-property-multiple applied", logger.PeerStr(peer))
	return &tsm.ServiceResult{Simple: true}, nil
}

func (h *Handlers) handleSubscribeCOV(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	req, err := DecodeSubscribeCOVRequest(data)
	if err != nil {
		return nil, &apdu.RejectError{Reason: apdu.RejectInvalidTag}
	}
	if _, ok := h.Database.Get(req.MonitoredObjectID); !ok {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceSubscribeCOV, ErrorClass: ErrorClassObject, ErrorCode: ErrorCodeUnknownObject}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	key := [2]uint32{uint32(req.MonitoredObjectID.Type), req.MonitoredObjectID.Instance}
	filtered := h.subs[:0]
	for _, s := range h.subs {
		if s.peer == peer && s.subscriberProcessID == req.SubscriberProcessID && s.monitoredObjectID == key {
			continue
		}
		filtered = append(filtered, s)
	}
	h.subs = filtered

	cancel := req.Lifetime == nil && req.IssueConfirmedNotifications == nil
	if !cancel {
		confirmed := req.IssueConfirmedNotifications != nil && *req.IssueConfirmedNotifications
		h.subs = append(h.subs, covSubscription{
			subscriberProcessID: req.SubscriberProcessID,
			peer:                peer,
			monitoredObjectID:   key,
			confirmed:           confirmed,
		})
	}
	logger.DebugCtx(ctx, "subscribe-cov updated", logger.PeerStr(peer))
	return &tsm.ServiceResult{Simple: true}, nil
}

// notifyCOV pushes a COV notification to every subscriber of oid through
// h.CovNotifier, the transport-aware hook the integration layer wires up
// to actually send an APDU; with no CovNotifier installed this only
// updates bookkeeping were there any to do, and changed-value reporting
// is silently skipped.
func (h *Handlers) notifyCOV(ctx context.Context, oid tag.ObjectIdentifier) {
	h.mu.Lock()
	key := [2]uint32{uint32(oid.Type), oid.Instance}
	var matched []covSubscription
	for _, s := range h.subs {
		if s.monitoredObjectID == key {
			matched = append(matched, s)
		}
	}
	notifier := h.CovNotifier
	h.mu.Unlock()

	if notifier == nil {
		return
	}
	for _, s := range matched {
		notifier.NotifyCOV(ctx, s.peer, s.subscriberProcessID, s.confirmed, oid)
	}
}

func (h *Handlers) handleDeviceCommunicationControl(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	req, err := DecodeDeviceCommunicationControlRequest(data)
	if err != nil {
		return nil, &apdu.RejectError{Reason: apdu.RejectInvalidTag}
	}
	logger.InfoCtx(ctx, "device-communication-control requested", logger.PeerStr(peer), logger.PropertyID(req.EnableDisable))
	return &tsm.ServiceResult{Simple: true}, nil
}

func (h *Handlers) handleReinitializeDevice(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	req, err := DecodeReinitializeDeviceRequest(data)
	if err != nil {
		return nil, &apdu.RejectError{Reason: apdu.RejectInvalidTag}
	}
	logger.InfoCtx(ctx, "reinitialize-device requested", logger.PeerStr(peer), logger.PropertyID(req.ReinitializedStateOfDevice))
	return &tsm.ServiceResult{Simple: true}, nil
}

func (h *Handlers) handleCreateObject(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	req, err := DecodeCreateObjectRequest(data)
	if err != nil {
		return nil, &apdu.RejectError{Reason: apdu.RejectInvalidTag}
	}
	if h.Factory == nil {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceCreateObject, ErrorClass: ErrorClassObject, ErrorCode: ErrorCodeDynamicCreationNotSupported}
	}
	initial := make(map[uint32][]byte, len(req.InitialValues))
	for _, v := range req.InitialValues {
		initial[v.PropertyID] = v.Value
	}
	obj, err := h.Factory.Create(req.ObjectType, req.ObjectInstance, initial)
	if err != nil {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceCreateObject, ErrorClass: ErrorClassObject, ErrorCode: ErrorCodeDynamicCreationNotSupported}
	}
	if err := h.Database.Add(obj); err != nil {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceCreateObject, ErrorClass: ErrorClassObject, ErrorCode: ErrorCodeDynamicCreationNotSupported}
	}
	logger.InfoCtx(ctx, "object created", logger.PeerStr(peer))
	ack := EncodeCreateObjectACK(CreateObjectACK{ObjectID: obj.Identifier()})
	return &tsm.ServiceResult{ComplexPayload: ack}, nil
}

func (h *Handlers) handleDeleteObject(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	req, err := DecodeDeleteObjectRequest(data)
	if err != nil {
		return nil, &apdu.RejectError{Reason: apdu.RejectInvalidTag}
	}
	if req.ObjectID == deviceOID(h.DeviceID) {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceDeleteObject, ErrorClass: ErrorClassObject, ErrorCode: ErrorCodeObjectDeletionNotPermitted}
	}
	if _, ok := h.Database.Get(req.ObjectID); !ok {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceDeleteObject, ErrorClass: ErrorClassObject, ErrorCode: ErrorCodeUnknownObject}
	}
	if err := h.Database.Remove(req.ObjectID); err != nil {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceDeleteObject, ErrorClass: ErrorClassObject, ErrorCode: ErrorCodeObjectDeletionNotPermitted}
	}
	logger.InfoCtx(ctx, "object deleted", logger.PeerStr(peer))
	return &tsm.ServiceResult{Simple: true}, nil
}

func (h *Handlers) handleAtomicReadFile(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	req, err := DecodeAtomicReadFileRequest(data)
	if err != nil {
		return nil, &apdu.RejectError{Reason: apdu.RejectInvalidTag}
	}
	if h.Files == nil {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceAtomicReadFile, ErrorClass: ErrorClassServices, ErrorCode: ErrorCodeFileAccessDenied}
	}
	if _, ok := h.Database.Get(req.FileID); !ok {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceAtomicReadFile, ErrorClass: ErrorClassObject, ErrorCode: ErrorCodeUnknownObject}
	}
	chunk, eof, err := h.Files.ReadFile(req.FileID, req.StartPosition, req.RequestedOctets)
	if err != nil {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceAtomicReadFile, ErrorClass: ErrorClassServices, ErrorCode: ErrorCodeFileAccessDenied}
	}
	ack := EncodeAtomicReadFileACK(AtomicReadFileACK{EndOfFile: eof, StartPosition: req.StartPosition, Data: chunk})
	return &tsm.ServiceResult{ComplexPayload: ack}, nil
}

func (h *Handlers) handleAtomicWriteFile(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	req, err := DecodeAtomicWriteFileRequest(data)
	if err != nil {
		return nil, &apdu.RejectError{Reason: apdu.RejectInvalidTag}
	}
	if h.Files == nil {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceAtomicWriteFile, ErrorClass: ErrorClassServices, ErrorCode: ErrorCodeFileAccessDenied}
	}
	if _, ok := h.Database.Get(req.FileID); !ok {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceAtomicWriteFile, ErrorClass: ErrorClassObject, ErrorCode: ErrorCodeUnknownObject}
	}
	if err := h.Files.WriteFile(req.FileID, req.StartPosition, req.Data); err != nil {
		return nil, &apdu.ApplicationError{ServiceChoice: ChoiceAtomicWriteFile, ErrorClass: ErrorClassServices, ErrorCode: ErrorCodeFileAccessDenied}
	}
	ack := EncodeAtomicWriteFileACK(AtomicWriteFileACK{StartPosition: req.StartPosition})
	return &tsm.ServiceResult{ComplexPayload: ack}, nil
}

// Unconfirmed services never produce a reply APDU, so every handler below
// always returns a nil *tsm.ServiceResult; DispatchUnconfirmed discards it
// and only the error (if any) matters, surfaced purely for logging by the
// caller since unconfirmed services have no sender to report it back to.

func (h *Handlers) handleWhoIs(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	req, err := DecodeWhoIs(data)
	if err != nil {
		return nil, nil
	}
	if req.LowLimit != nil && req.HighLimit != nil {
		if h.DeviceID < *req.LowLimit || h.DeviceID > *req.HighLimit {
			return nil, nil
		}
	}
	if h.Announcer == nil {
		return nil, nil
	}
	iam := EncodeIAm(IAmRequest{
		DeviceIdentifier:      deviceOID(h.DeviceID),
		MaxAPDULengthAccepted: h.MaxAPDU,
		SegmentationSupported: h.Segmentation,
		VendorID:              h.VendorID,
	})
	if err := h.Announcer.AnnounceUnconfirmed(ctx, ChoiceIAm, iam); err != nil {
		return nil, fmt.Errorf("announce i-am: %w", err)
	}
	return nil, nil
}

func (h *Handlers) handleWhoHas(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	req, err := DecodeWhoHas(data)
	if err != nil {
		return nil, nil
	}
	if req.LowLimit != nil && req.HighLimit != nil {
		if h.DeviceID < *req.LowLimit || h.DeviceID > *req.HighLimit {
			return nil, nil
		}
	}
	var found objects.Object
	for _, obj := range h.Database.Iterate() {
		id := obj.Identifier()
		switch {
		case req.ObjectID != nil:
			if id.Type == req.ObjectID.Type && id.Instance == req.ObjectID.Instance {
				found = obj
			}
		case req.ObjectName != nil:
			nameBytes, err := obj.ReadProperty(PropObjectName, nil)
			if err == nil {
				if name, _, err := decodeApplicationCharacterString(nameBytes); err == nil && name == *req.ObjectName {
					found = obj
				}
			}
		}
		if found != nil {
			break
		}
	}
	if found == nil || h.Announcer == nil {
		return nil, nil
	}
	nameBytes, err := found.ReadProperty(PropObjectName, nil)
	name := ""
	if err == nil {
		if n, _, err := decodeApplicationCharacterString(nameBytes); err == nil {
			name = n
		}
	}
	ihave := EncodeIHave(IHaveRequest{
		DeviceIdentifier: deviceOID(h.DeviceID),
		ObjectIdentifier: found.Identifier(),
		ObjectName:       name,
	})
	if err := h.Announcer.AnnounceUnconfirmed(ctx, ChoiceIHave, ihave); err != nil {
		return nil, fmt.Errorf("announce i-have: %w", err)
	}
	return nil, nil
}

func (h *Handlers) handleIAm(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	req, err := DecodeIAm(data)
	if err != nil {
		return nil, nil
	}
	logger.DebugCtx(ctx, "i-am received", logger.PeerStr(peer), logger.PropertyID(req.DeviceIdentifier.Instance))
	return nil, nil
}

func (h *Handlers) handleIHave(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	if _, err := DecodeIHave(data); err != nil {
		return nil, nil
	}
	logger.DebugCtx(ctx, "i-have received", logger.PeerStr(peer))
	return nil, nil
}

func (h *Handlers) handleUnconfirmedCOVNotification(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	n, err := DecodeCOVNotification(data)
	if err != nil {
		return nil, nil
	}
	logger.DebugCtx(ctx, "cov notification received", logger.PeerStr(peer), logger.PropertyID(n.MonitoredObjectID.Instance))
	return nil, nil
}

func (h *Handlers) handleTimeSynchronization(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	if _, err := DecodeTimeSynchronizationRequest(data); err != nil {
		return nil, nil
	}
	logger.DebugCtx(ctx, "time-synchronization received", logger.PeerStr(peer))
	return nil, nil
}

func (h *Handlers) handleTextMessage(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
	msg, err := DecodeTextMessageRequest(data)
	if err != nil {
		return nil, nil
	}
	logger.InfoCtx(ctx, "text message received", logger.PeerStr(peer), logger.PropertyID(msg.MessagePriority))
	return nil, nil
}
