package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bactalk/bacstack/internal/logger"
	"github.com/bactalk/bacstack/internal/service"
	"github.com/bactalk/bacstack/internal/tag"
	"github.com/bactalk/bacstack/internal/tsm"
)

// DiscoveredDevice is one device that answered a Who-Is broadcast.
type DiscoveredDevice struct {
	Address               string
	Instance              uint32
	MaxAPDULengthAccepted uint32
	SegmentationSupported uint32
	VendorID              uint32
}

// FoundObject is one device's answer to a Who-Has broadcast.
type FoundObject struct {
	Address        string
	DeviceInstance uint32
	ObjectID       tag.ObjectIdentifier
	ObjectName     string
}

// WhoIs broadcasts a Who-Is, optionally bounded to a device-instance
// range, and collects I-Am replies for the discovery window. It never
// fails on "no responses": an empty slice is a valid answer.
func (c *Client) WhoIs(ctx context.Context, lowLimit, highLimit *uint32) ([]DiscoveredDevice, error) {
	sweep := uuid.NewString()
	logger.DebugCtx(ctx, "who-is sweep started", logger.Sweep(sweep))

	var mu sync.Mutex
	found := make(map[uint32]DiscoveredDevice)

	cancel := c.station.Registry().RegisterTemporary(service.ChoiceIAm, func(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
		iam, err := service.DecodeIAm(data)
		if err != nil {
			return nil, nil
		}
		inst := iam.DeviceIdentifier.Instance
		if lowLimit != nil && inst < *lowLimit {
			return nil, nil
		}
		if highLimit != nil && inst > *highLimit {
			return nil, nil
		}
		mu.Lock()
		found[inst] = DiscoveredDevice{
			Address:               peer,
			Instance:              inst,
			MaxAPDULengthAccepted: iam.MaxAPDULengthAccepted,
			SegmentationSupported: iam.SegmentationSupported,
			VendorID:              iam.VendorID,
		}
		mu.Unlock()
		return nil, nil
	})
	defer cancel()

	body := service.EncodeWhoIs(service.WhoIsRequest{LowLimit: lowLimit, HighLimit: highLimit})
	if err := c.station.AnnounceUnconfirmed(ctx, service.ChoiceWhoIs, body); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
	case <-time.After(c.discoveryWindow()):
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]DiscoveredDevice, 0, len(found))
	for _, d := range found {
		out = append(out, d)
	}
	logger.DebugCtx(ctx, "who-is sweep finished", logger.Sweep(sweep), logger.Count(len(out)))
	return out, nil
}

// Discover broadcasts an unbounded Who-Is.
func (c *Client) Discover(ctx context.Context) ([]DiscoveredDevice, error) {
	return c.WhoIs(ctx, nil, nil)
}

// WhoHas broadcasts a Who-Has for an object named either by identifier
// ("analog-input,3") or by object name, and collects I-Have replies for
// the discovery window. Exactly one of objectID and objectName must be
// non-empty.
func (c *Client) WhoHas(ctx context.Context, objectID, objectName string, lowLimit, highLimit *uint32) ([]FoundObject, error) {
	req := service.WhoHasRequest{LowLimit: lowLimit, HighLimit: highLimit}
	if objectID != "" {
		oid, err := ParseObjectID(objectID)
		if err != nil {
			return nil, err
		}
		req.ObjectID = &oid
	} else {
		req.ObjectName = &objectName
	}

	sweep := uuid.NewString()
	logger.DebugCtx(ctx, "who-has sweep started", logger.Sweep(sweep))

	var mu sync.Mutex
	var found []FoundObject

	cancel := c.station.Registry().RegisterTemporary(service.ChoiceIHave, func(ctx context.Context, peer string, data []byte) (*tsm.ServiceResult, error) {
		ihave, err := service.DecodeIHave(data)
		if err != nil {
			return nil, nil
		}
		mu.Lock()
		found = append(found, FoundObject{
			Address:        peer,
			DeviceInstance: ihave.DeviceIdentifier.Instance,
			ObjectID:       ihave.ObjectIdentifier,
			ObjectName:     ihave.ObjectName,
		})
		mu.Unlock()
		return nil, nil
	})
	defer cancel()

	if err := c.station.AnnounceUnconfirmed(ctx, service.ChoiceWhoHas, service.EncodeWhoHas(req)); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
	case <-time.After(c.discoveryWindow()):
	}

	mu.Lock()
	defer mu.Unlock()
	logger.DebugCtx(ctx, "who-has sweep finished", logger.Sweep(sweep), logger.Count(len(found)))
	return append([]FoundObject(nil), found...), nil
}
