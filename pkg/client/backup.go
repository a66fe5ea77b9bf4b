package client

import (
	"context"
	"fmt"

	"github.com/bactalk/bacstack/internal/tag"
)

// backupChunkSize bounds each AtomicReadFile/AtomicWriteFile request so
// the transfer stays under every standard max-APDU size without relying
// on segmentation support in the peer.
const backupChunkSize = 1024

// DeviceImage is the result of backing up one device: the raw contents
// of each of its configuration File objects, in the order the device
// listed them.
type DeviceImage struct {
	Files []FileImage
}

// FileImage is one configuration file captured during Backup.
type FileImage struct {
	FileID tag.ObjectIdentifier
	Data   []byte
}

// Backup executes the clause 19.1 backup procedure against addr: put the
// device into backup mode, read every File object named by its Device
// object's configuration-files property, then end backup. The device is
// taken out of backup mode even when a file read fails partway.
func (c *Client) Backup(ctx context.Context, addr, password string) (*DeviceImage, error) {
	deviceInstance, err := c.peerDeviceInstance(ctx, addr)
	if err != nil {
		return nil, err
	}
	deviceID := fmt.Sprintf("device,%d", deviceInstance)

	if err := c.ReinitializeDevice(ctx, addr, "start-backup", password); err != nil {
		return nil, fmt.Errorf("client: start backup: %w", err)
	}

	image, backupErr := c.captureFiles(ctx, addr, deviceID)

	if err := c.ReinitializeDevice(ctx, addr, "end-backup", password); err != nil {
		if backupErr == nil {
			backupErr = fmt.Errorf("client: end backup: %w", err)
		}
	}
	if backupErr != nil {
		return nil, backupErr
	}
	return image, nil
}

// captureFiles reads the device's configuration-files list and drains
// each referenced File object chunk by chunk.
func (c *Client) captureFiles(ctx context.Context, addr, deviceID string) (*DeviceImage, error) {
	refs, err := c.configurationFiles(ctx, addr, deviceID)
	if err != nil {
		return nil, err
	}

	image := &DeviceImage{}
	for _, fileID := range refs {
		var data []byte
		for {
			chunk, eof, err := c.AtomicReadFile(ctx, addr, fmt.Sprintf("%d,%d", fileID.Type, fileID.Instance), int32(len(data)), backupChunkSize)
			if err != nil {
				return nil, fmt.Errorf("client: read backup file %s: %w", fileID, err)
			}
			data = append(data, chunk...)
			if eof || len(chunk) == 0 {
				break
			}
		}
		image.Files = append(image.Files, FileImage{FileID: fileID, Data: data})
	}
	return image, nil
}

// configurationFiles reads the Device object's configuration-files
// property: an array of object identifiers naming the File objects that
// hold the device's persistent configuration.
func (c *Client) configurationFiles(ctx context.Context, addr, deviceID string) ([]tag.ObjectIdentifier, error) {
	var refs []tag.ObjectIdentifier
	for index := uint32(1); ; index++ {
		idx := index
		v, err := c.ReadProperty(ctx, addr, deviceID, "configuration-files", &idx)
		if err != nil {
			// Reading one past the end yields an invalid-array-index
			// application error; everything before it is the full list.
			if index > 1 {
				return refs, nil
			}
			return nil, fmt.Errorf("client: read configuration-files: %w", err)
		}
		oid, ok := v.(tag.ObjectIdentifier)
		if !ok {
			return nil, fmt.Errorf("client: configuration-files[%d] is %T, want object identifier", index, v)
		}
		refs = append(refs, oid)
	}
}

// Restore executes the clause 19.1 restore procedure: put the device
// into restore mode, write each captured file back, then end restore. A
// failed write aborts the restore so the device discards the partial
// image rather than booting from it.
func (c *Client) Restore(ctx context.Context, addr, password string, image *DeviceImage) error {
	if image == nil || len(image.Files) == 0 {
		return fmt.Errorf("client: empty device image")
	}

	if err := c.ReinitializeDevice(ctx, addr, "start-restore", password); err != nil {
		return fmt.Errorf("client: start restore: %w", err)
	}

	for _, f := range image.Files {
		fileID := fmt.Sprintf("%d,%d", f.FileID.Type, f.FileID.Instance)
		for offset := 0; offset < len(f.Data); offset += backupChunkSize {
			end := offset + backupChunkSize
			if end > len(f.Data) {
				end = len(f.Data)
			}
			if _, err := c.AtomicWriteFile(ctx, addr, fileID, int32(offset), f.Data[offset:end]); err != nil {
				if abortErr := c.ReinitializeDevice(ctx, addr, "abort-restore", password); abortErr != nil {
					return fmt.Errorf("client: write restore file %s: %w (abort-restore also failed: %v)", f.FileID, err, abortErr)
				}
				return fmt.Errorf("client: write restore file %s: %w", f.FileID, err)
			}
		}
	}

	if err := c.ReinitializeDevice(ctx, addr, "end-restore", password); err != nil {
		return fmt.Errorf("client: end restore: %w", err)
	}
	return nil
}

// peerDeviceInstance discovers the Device object instance behind addr by
// reading the wildcard device identifier, the standard trick for
// addressing a device whose instance number is not yet known.
func (c *Client) peerDeviceInstance(ctx context.Context, addr string) (uint32, error) {
	v, err := c.ReadProperty(ctx, addr, "device,4194303", "object-identifier", nil)
	if err != nil {
		return 0, fmt.Errorf("client: read peer device identifier: %w", err)
	}
	oid, ok := v.(tag.ObjectIdentifier)
	if !ok {
		return 0, fmt.Errorf("client: peer device identifier is %T, want object identifier", v)
	}
	return oid.Instance, nil
}
