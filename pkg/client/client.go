// Package client is the caller-facing application API: a thin wrapper
// over the station's Transaction State Machine that accepts addresses,
// object identifiers, and property names in human-readable string form
// and returns decoded native values.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/bactalk/bacstack/internal/npdu"
	"github.com/bactalk/bacstack/internal/service"
	"github.com/bactalk/bacstack/internal/station"
	"github.com/bactalk/bacstack/internal/tag"
	"github.com/bactalk/bacstack/pkg/config"
	"github.com/bactalk/bacstack/pkg/metrics"
	"github.com/bactalk/bacstack/pkg/objects"
)

// DefaultDiscoveryWindow is how long Discover/WhoIs/WhoHas collect
// replies before returning.
const DefaultDiscoveryWindow = 3 * time.Second

// Client wraps a running Station with the request/response plumbing of
// each application service. A Client can own its station (New + Start)
// or attach to one an embedding application already runs (Attach).
type Client struct {
	station   *station.Station
	ownsStation bool

	// DiscoveryWindow bounds how long WhoIs/WhoHas/Discover listen for
	// replies; zero means DefaultDiscoveryWindow.
	DiscoveryWindow time.Duration
}

// New builds a Client with its own minimal Station: an empty object
// database, no file store, and the data link cfg selects.
func New(cfg *config.Config, reg *metrics.Registry) (*Client, error) {
	st, err := station.New(cfg, objects.NewStore(), objects.NewMemoryFileStore(), nil, reg)
	if err != nil {
		return nil, fmt.Errorf("client: build station: %w", err)
	}
	return &Client{station: st, ownsStation: true}, nil
}

// Attach wraps an already-constructed Station without taking over its
// lifecycle; Start and Stop become no-ops.
func Attach(st *station.Station) *Client {
	return &Client{station: st}
}

// Start opens the owned station's data link. Attached clients return
// immediately.
func (c *Client) Start(ctx context.Context) error {
	if !c.ownsStation {
		return nil
	}
	return c.station.Start(ctx)
}

// Stop shuts the owned station down. Attached clients return immediately.
func (c *Client) Stop(ctx context.Context) error {
	if !c.ownsStation {
		return nil
	}
	return c.station.Stop(ctx)
}

// Station exposes the wrapped station for callers that need the lower
// layers.
func (c *Client) Station() *station.Station { return c.station }

func (c *Client) resolve(addr string) (npdu.NetworkAddress, error) {
	return c.station.ResolveAddress(addr)
}

// ReadProperty reads one property of one object and returns its decoded
// native value (float64, uint64, string, ... per DecodeValue).
func (c *Client) ReadProperty(ctx context.Context, addr, objectID, property string, arrayIndex *uint32) (any, error) {
	dest, err := c.resolve(addr)
	if err != nil {
		return nil, err
	}
	oid, err := ParseObjectID(objectID)
	if err != nil {
		return nil, err
	}
	pid, err := ParsePropertyID(property)
	if err != nil {
		return nil, err
	}

	payload, err := c.station.Request(ctx, dest, service.ChoiceReadProperty, service.EncodeReadPropertyRequest(service.ReadPropertyRequest{
		ObjectID:   oid,
		PropertyID: pid,
		ArrayIndex: arrayIndex,
	}))
	if err != nil {
		return nil, err
	}
	ack, err := service.DecodeReadPropertyACK(payload)
	if err != nil {
		return nil, fmt.Errorf("client: decode read-property ack: %w", err)
	}
	return DecodeValue(ack.Value)
}

// WriteProperty writes one property of one object. value is a native Go
// value encoded per EncodeValue; priority, when non-nil, must be 1..16.
func (c *Client) WriteProperty(ctx context.Context, addr, objectID, property string, value any, arrayIndex *uint32, priority *uint8) error {
	dest, err := c.resolve(addr)
	if err != nil {
		return err
	}
	oid, err := ParseObjectID(objectID)
	if err != nil {
		return err
	}
	pid, err := ParsePropertyID(property)
	if err != nil {
		return err
	}
	if priority != nil && (*priority < 1 || *priority > 16) {
		return fmt.Errorf("client: write priority %d out of range 1..16", *priority)
	}
	encoded, err := EncodeValue(value)
	if err != nil {
		return err
	}

	_, err = c.station.Request(ctx, dest, service.ChoiceWriteProperty, service.EncodeWritePropertyRequest(service.WritePropertyRequest{
		ObjectID:   oid,
		PropertyID: pid,
		ArrayIndex: arrayIndex,
		Value:      encoded,
		Priority:   priority,
	}))
	return err
}

// PropertyReading is one decoded property in a ReadPropertyMultiple
// result. Err carries the per-property access error the peer reported,
// if any; Value is nil in that case.
type PropertyReading struct {
	ObjectID   tag.ObjectIdentifier
	Property   uint32
	ArrayIndex *uint32
	Value      any
	Err        error
}

// ReadSpec names the properties to fetch from one object in a
// ReadPropertyMultiple call. Properties are names or numeric codes.
type ReadSpec struct {
	ObjectID   string
	Properties []string
}

// ReadPropertyMultiple reads several properties across several objects
// in one round trip, decoding every returned value. Per-property access
// failures come back inside the result list, not as a call error.
func (c *Client) ReadPropertyMultiple(ctx context.Context, addr string, specs []ReadSpec) ([]PropertyReading, error) {
	dest, err := c.resolve(addr)
	if err != nil {
		return nil, err
	}
	wire := make([]service.ReadAccessSpecification, 0, len(specs))
	for _, spec := range specs {
		oid, err := ParseObjectID(spec.ObjectID)
		if err != nil {
			return nil, err
		}
		refs := make([]service.PropertyReference, 0, len(spec.Properties))
		for _, p := range spec.Properties {
			pid, err := ParsePropertyID(p)
			if err != nil {
				return nil, err
			}
			refs = append(refs, service.PropertyReference{PropertyID: pid})
		}
		wire = append(wire, service.ReadAccessSpecification{ObjectID: oid, PropertyReferences: refs})
	}

	payload, err := c.station.Request(ctx, dest, service.ChoiceReadPropertyMultiple, service.EncodeReadPropertyMultipleRequest(wire))
	if err != nil {
		return nil, err
	}
	results, err := service.DecodeReadPropertyMultipleACK(payload)
	if err != nil {
		return nil, fmt.Errorf("client: decode read-property-multiple ack: %w", err)
	}

	var out []PropertyReading
	for _, r := range results {
		for _, pr := range r.Results {
			reading := PropertyReading{ObjectID: r.ObjectID, Property: pr.PropertyID, ArrayIndex: pr.ArrayIndex}
			if pr.ErrorClass != nil && pr.ErrorCode != nil {
				reading.Err = fmt.Errorf("client: property %d on %s: error class=%d code=%d", pr.PropertyID, r.ObjectID, *pr.ErrorClass, *pr.ErrorCode)
			} else {
				v, err := DecodeValue(pr.Value)
				if err != nil {
					reading.Err = err
				} else {
					reading.Value = v
				}
			}
			out = append(out, reading)
		}
	}
	return out, nil
}

// WriteSpec names the values to store on one object in a
// WritePropertyMultiple call.
type WriteSpec struct {
	ObjectID string
	Writes   []PropertyWrite
}

// PropertyWrite is one property assignment inside a WriteSpec.
type PropertyWrite struct {
	Property   string
	Value      any
	ArrayIndex *uint32
	Priority   *uint8
}

// WritePropertyMultiple writes several properties across several objects
// in one round trip. The peer applies writes object-by-object and
// reports the first failure as the call error.
func (c *Client) WritePropertyMultiple(ctx context.Context, addr string, specs []WriteSpec) error {
	dest, err := c.resolve(addr)
	if err != nil {
		return err
	}
	wire := make([]service.WriteAccessSpecification, 0, len(specs))
	for _, spec := range specs {
		oid, err := ParseObjectID(spec.ObjectID)
		if err != nil {
			return err
		}
		writes := make([]service.PropertyValueWrite, 0, len(spec.Writes))
		for _, w := range spec.Writes {
			pid, err := ParsePropertyID(w.Property)
			if err != nil {
				return err
			}
			encoded, err := EncodeValue(w.Value)
			if err != nil {
				return err
			}
			writes = append(writes, service.PropertyValueWrite{
				PropertyID: pid,
				ArrayIndex: w.ArrayIndex,
				Value:      encoded,
				Priority:   w.Priority,
			})
		}
		wire = append(wire, service.WriteAccessSpecification{ObjectID: oid, Values: writes})
	}

	_, err = c.station.Request(ctx, dest, service.ChoiceWritePropertyMultiple, service.EncodeWritePropertyMultipleRequest(wire))
	return err
}

// SubscribeCOV establishes (or, with lifetime nil and confirmed nil,
// cancels) a change-of-value subscription on the monitored object.
func (c *Client) SubscribeCOV(ctx context.Context, addr, objectID string, processID uint32, confirmed *bool, lifetimeSeconds *uint32) error {
	dest, err := c.resolve(addr)
	if err != nil {
		return err
	}
	oid, err := ParseObjectID(objectID)
	if err != nil {
		return err
	}
	_, err = c.station.Request(ctx, dest, service.ChoiceSubscribeCOV, service.EncodeSubscribeCOVRequest(service.SubscribeCOVRequest{
		SubscriberProcessID:         processID,
		MonitoredObjectID:           oid,
		IssueConfirmedNotifications: confirmed,
		Lifetime:                    lifetimeSeconds,
	}))
	return err
}

// CreateObject asks the peer to instantiate an object. objectID may name
// a specific instance ("analog-value,7") or just a type ("analog-value")
// to let the peer pick; the created identifier is returned either way.
func (c *Client) CreateObject(ctx context.Context, addr, objectID string) (tag.ObjectIdentifier, error) {
	dest, err := c.resolve(addr)
	if err != nil {
		return tag.ObjectIdentifier{}, err
	}

	req := service.CreateObjectRequest{}
	if oid, parseErr := ParseObjectID(objectID); parseErr == nil {
		req.ObjectType = oid.Type
		inst := oid.Instance
		req.ObjectInstance = &inst
	} else {
		objType, ok := objectTypeNames[objectID]
		if !ok {
			return tag.ObjectIdentifier{}, parseErr
		}
		req.ObjectType = objType
	}

	payload, err := c.station.Request(ctx, dest, service.ChoiceCreateObject, service.EncodeCreateObjectRequest(req))
	if err != nil {
		return tag.ObjectIdentifier{}, err
	}
	ack, err := service.DecodeCreateObjectACK(payload)
	if err != nil {
		return tag.ObjectIdentifier{}, fmt.Errorf("client: decode create-object ack: %w", err)
	}
	return ack.ObjectID, nil
}

// DeleteObject asks the peer to remove an object.
func (c *Client) DeleteObject(ctx context.Context, addr, objectID string) error {
	dest, err := c.resolve(addr)
	if err != nil {
		return err
	}
	oid, err := ParseObjectID(objectID)
	if err != nil {
		return err
	}
	_, err = c.station.Request(ctx, dest, service.ChoiceDeleteObject, service.EncodeDeleteObjectRequest(service.DeleteObjectRequest{ObjectID: oid}))
	return err
}

// DeviceCommunicationControl enables or disables the peer's
// application-layer traffic. state is one of "enable", "disable",
// "disable-initiation". durationMinutes nil means indefinite.
func (c *Client) DeviceCommunicationControl(ctx context.Context, addr, state string, durationMinutes *uint32, password string) error {
	dest, err := c.resolve(addr)
	if err != nil {
		return err
	}
	var enableDisable uint32
	switch state {
	case "enable":
		enableDisable = service.CommEnable
	case "disable":
		enableDisable = service.CommDisable
	case "disable-initiation":
		enableDisable = service.CommDisableInitiation
	default:
		return fmt.Errorf("client: unknown communication-control state %q", state)
	}
	req := service.DeviceCommunicationControlRequest{
		TimeDuration:  durationMinutes,
		EnableDisable: enableDisable,
	}
	if password != "" {
		req.Password = &password
	}
	_, err = c.station.Request(ctx, dest, service.ChoiceDeviceCommunicationControl, service.EncodeDeviceCommunicationControlRequest(req))
	return err
}

// ReinitializeDevice asks the peer to coldstart/warmstart or enter a
// backup/restore phase. state is one of "coldstart", "warmstart",
// "start-backup", "end-backup", "start-restore", "end-restore",
// "abort-restore".
func (c *Client) ReinitializeDevice(ctx context.Context, addr, state, password string) error {
	dest, err := c.resolve(addr)
	if err != nil {
		return err
	}
	code, err := reinitStateCode(state)
	if err != nil {
		return err
	}
	req := service.ReinitializeDeviceRequest{ReinitializedStateOfDevice: code}
	if password != "" {
		req.Password = &password
	}
	_, err = c.station.Request(ctx, dest, service.ChoiceReinitializeDevice, service.EncodeReinitializeDeviceRequest(req))
	return err
}

func reinitStateCode(state string) (uint32, error) {
	switch state {
	case "coldstart":
		return service.ReinitColdstart, nil
	case "warmstart":
		return service.ReinitWarmstart, nil
	case "start-backup":
		return service.ReinitStartBackup, nil
	case "end-backup":
		return service.ReinitEndBackup, nil
	case "start-restore":
		return service.ReinitStartRestore, nil
	case "end-restore":
		return service.ReinitEndRestore, nil
	case "abort-restore":
		return service.ReinitAbortRestore, nil
	default:
		return 0, fmt.Errorf("client: unknown reinitialize state %q", state)
	}
}

// TimeSynchronization announces the local wall-clock time to one peer
// ("10.0.0.7") or a broadcast domain ("*"). The service is unconfirmed;
// delivery is not acknowledged.
func (c *Client) TimeSynchronization(ctx context.Context, addr string, at time.Time) error {
	body := service.EncodeTimeSynchronizationRequest(service.TimeSynchronizationRequest{
		Date: tag.Date{
			Year:    at.Year(),
			Month:   uint8(at.Month()),
			Day:     uint8(at.Day()),
			Weekday: dayOfWeek(at),
		},
		Time: tag.Time{
			Hour:       uint8(at.Hour()),
			Minute:     uint8(at.Minute()),
			Second:     uint8(at.Second()),
			Hundredths: uint8(at.Nanosecond() / 10_000_000),
		},
	})

	if addr == "*" {
		return c.station.AnnounceUnconfirmed(ctx, service.ChoiceTimeSynchronization, body)
	}
	dest, err := c.resolve(addr)
	if err != nil {
		return err
	}
	return c.station.SendUnconfirmedTo(ctx, dest, service.ChoiceTimeSynchronization, body)
}

// dayOfWeek maps Go's Sunday-based weekday onto BACnet's Monday=1 form.
func dayOfWeek(t time.Time) uint8 {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return uint8(wd)
}

// AtomicReadFile reads count octets of a File object starting at start.
// The second return reports end-of-file.
func (c *Client) AtomicReadFile(ctx context.Context, addr, fileID string, start int32, count uint32) ([]byte, bool, error) {
	dest, err := c.resolve(addr)
	if err != nil {
		return nil, false, err
	}
	oid, err := ParseObjectID(fileID)
	if err != nil {
		return nil, false, err
	}
	payload, err := c.station.Request(ctx, dest, service.ChoiceAtomicReadFile, service.EncodeAtomicReadFileRequest(service.AtomicReadFileRequest{
		FileID:          oid,
		StartPosition:   start,
		RequestedOctets: count,
	}))
	if err != nil {
		return nil, false, err
	}
	ack, err := service.DecodeAtomicReadFileACK(payload)
	if err != nil {
		return nil, false, fmt.Errorf("client: decode atomic-read-file ack: %w", err)
	}
	return ack.Data, ack.EndOfFile, nil
}

// AtomicWriteFile writes data into a File object at start and returns
// the position the peer actually stored it at.
func (c *Client) AtomicWriteFile(ctx context.Context, addr, fileID string, start int32, data []byte) (int32, error) {
	dest, err := c.resolve(addr)
	if err != nil {
		return 0, err
	}
	oid, err := ParseObjectID(fileID)
	if err != nil {
		return 0, err
	}
	payload, err := c.station.Request(ctx, dest, service.ChoiceAtomicWriteFile, service.EncodeAtomicWriteFileRequest(service.AtomicWriteFileRequest{
		FileID:        oid,
		StartPosition: start,
		Data:          data,
	}))
	if err != nil {
		return 0, err
	}
	ack, err := service.DecodeAtomicWriteFileACK(payload)
	if err != nil {
		return 0, fmt.Errorf("client: decode atomic-write-file ack: %w", err)
	}
	return ack.StartPosition, nil
}

// SendTextMessage delivers an unconfirmed text message to one peer.
// priority is 0 (normal) or 1 (urgent).
func (c *Client) SendTextMessage(ctx context.Context, addr string, priority uint32, message string) error {
	dest, err := c.resolve(addr)
	if err != nil {
		return err
	}
	body := service.EncodeTextMessageRequest(service.TextMessageRequest{
		TextMessageSourceDevice: c.station.DeviceID(),
		MessagePriority:         priority,
		Message:                 message,
	})
	return c.station.SendUnconfirmedTo(ctx, dest, service.ChoiceTextMessage, body)
}

func (c *Client) discoveryWindow() time.Duration {
	if c.DiscoveryWindow > 0 {
		return c.DiscoveryWindow
	}
	return DefaultDiscoveryWindow
}
