package shutdown

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// NewOperationID mints a fresh identifier for a StateSnapshot's OperationID
// field, for tenants whose state-preservation hook has no operation
// identity of its own to report.
func NewOperationID() string {
	return uuid.NewString()
}

// snapshotDocument is the on-disk JSON shape of one state-save phase's
// output: a single file holding every component's snapshot collected
// during that shutdown.
type snapshotDocument struct {
	Version        int                `json:"version"`
	Timestamp      time.Time          `json:"timestamp"`
	Trigger        string             `json:"trigger"`
	TriggerDetails string             `json:"trigger_details"`
	Snapshots      []snapshotRecord   `json:"snapshots"`
}

type snapshotRecord struct {
	ComponentID string            `json:"component_id"`
	OperationID string            `json:"operation_id"`
	Timestamp   time.Time         `json:"timestamp"`
	StateType   string            `json:"state_type"`
	StateData   string            `json:"state_data"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	DataSize    int               `json:"data_size"`
	Checksum    uint32            `json:"checksum"`
	Priority    int               `json:"priority"`
	ExpiryTime  *time.Duration    `json:"expiry_time,omitempty"`
	Compressed  bool              `json:"-"`
}

const snapshotFormatVersion = 1

// checksumOf computes the IEEE CRC-32 of the uncompressed state data, so
// integrity can be verified regardless of whether compression was
// applied on write or is applied differently on a later read.
func checksumOf(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

func encodeStateData(raw []byte, compress bool) (string, error) {
	if !compress {
		return base64.StdEncoding.EncodeToString(raw), nil
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// decodeStateData reverses encodeStateData. Whether the payload is
// compressed is not carried per-record in the wire format, so the
// caller's current CompressStateData setting is taken as the
// decompression hint — a snapshot file is expected to be read back by
// an orchestrator configured compatibly with the one that wrote it.
func decodeStateData(encoded string, compressed bool) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if !compressed {
		return raw, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func stateFilename(cfg Config, trigger Trigger, now time.Time) string {
	return fmt.Sprintf("%s%s_%s_%03d.json",
		cfg.StateFilePrefix,
		trigger.String(),
		now.Format("20060102_150405"),
		now.Nanosecond()/1_000_000,
	)
}

func writeSnapshotFile(cfg Config, trigger Trigger, details string, snapshots []StateSnapshot, now time.Time) (string, int64, error) {
	records := make([]snapshotRecord, 0, len(snapshots))
	for _, s := range snapshots {
		raw := []byte(s.StateData)
		sum := checksumOf(raw)
		encoded, err := encodeStateData(raw, cfg.CompressStateData)
		if err != nil {
			return "", 0, fmt.Errorf("encode state for %s: %w", s.ComponentID, err)
		}
		opID := s.OperationID
		if opID == "" {
			opID = NewOperationID()
		}
		records = append(records, snapshotRecord{
			ComponentID: s.ComponentID,
			OperationID: opID,
			Timestamp:   s.Timestamp,
			StateType:   s.StateType,
			StateData:   encoded,
			Metadata:    s.Metadata,
			DataSize:    len(raw),
			Checksum:    sum,
			Priority:    s.Priority,
			ExpiryTime:  s.ExpiryTime,
		})
	}

	doc := snapshotDocument{
		Version:        snapshotFormatVersion,
		Timestamp:      now,
		Trigger:        trigger.String(),
		TriggerDetails: details,
		Snapshots:      records,
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", 0, err
	}

	name := stateFilename(cfg, trigger, now)
	path := filepath.Join(cfg.StateDirectory, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", 0, err
	}
	return path, int64(len(body)), nil
}

// pruneOldStateFiles removes the oldest state files beyond
// Config.MaxStateFiles, ranked by modification time.
func pruneOldStateFiles(cfg Config) error {
	if cfg.MaxStateFiles <= 0 {
		return nil
	}
	entries, err := os.ReadDir(cfg.StateDirectory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(cfg.StateDirectory, e.Name()), modTime: info.ModTime()})
	}
	if len(files) <= cfg.MaxStateFiles {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	excess := len(files) - cfg.MaxStateFiles
	for _, f := range files[:excess] {
		if err := os.Remove(f.path); err != nil {
			return err
		}
	}
	return nil
}

// LoadedSnapshot pairs a decoded StateSnapshot with the document it was
// read from, for Load's caller to trace provenance.
type LoadedSnapshot struct {
	StateSnapshot
	SourceFile string
}

// Load enumerates every state snapshot file in Config.StateDirectory and
// returns their combined snapshots, sorted by priority ascending.
func Load(cfg Config) ([]LoadedSnapshot, error) {
	entries, err := os.ReadDir(cfg.StateDirectory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []LoadedSnapshot
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(cfg.StateDirectory, e.Name())
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var doc snapshotDocument
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for _, rec := range doc.Snapshots {
			raw, err := decodeStateData(rec.StateData, cfg.CompressStateData)
			if err != nil {
				return nil, fmt.Errorf("decode state in %s: %w", path, err)
			}
			// Checksum is recomputed on load against the decoded payload; a
			// mismatch rejects just this snapshot, not the whole file.
			if checksumOf(raw) != rec.Checksum {
				continue
			}
			out = append(out, LoadedSnapshot{
				StateSnapshot: StateSnapshot{
					ComponentID: rec.ComponentID,
					OperationID: rec.OperationID,
					Timestamp:   rec.Timestamp,
					StateType:   rec.StateType,
					StateData:   string(raw),
					Metadata:    rec.Metadata,
					DataSize:    rec.DataSize,
					Checksum:    rec.Checksum,
					Priority:    rec.Priority,
					ExpiryTime:  rec.ExpiryTime,
				},
				SourceFile: path,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

// VerifyChecksum reports whether snap's StateData still matches the
// checksum recorded at save time.
func VerifyChecksum(snap StateSnapshot) bool {
	return checksumOf([]byte(snap.StateData)) == snap.Checksum
}
