// Package stats implements the statistic/simulation harness: trace
// recording, the binary trace codec of spec §6, and the analytical
// sizing functions of §4.6.
package stats

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/fileguard/fileguard/types"
)

// Trace is the in-memory form of a persisted trace file: the access and
// size distributions plus the raw event log, matching §3's TraceEvent
// model and §6's on-disk layout exactly.
type Trace struct {
	Access types.AccessDistribution
	Size   types.SizeDistribution
	Events []types.TraceEvent
}

// Save writes t to path in the exact binary layout §6 specifies:
// little-endian, natural alignment, three sections each prefixed by a
// u64 count.
func Save(path string, t *Trace) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeTrace(w, t); err != nil {
		return err
	}
	return w.Flush()
}

func writeTrace(w io.Writer, t *Trace) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(t.Access))); err != nil {
		return fmt.Errorf("write hit_count: %w", err)
	}
	for key, hits := range t.Access {
		if err := writeKeyedU64(w, key, hits); err != nil {
			return fmt.Errorf("write access record: %w", err)
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(t.Size))); err != nil {
		return fmt.Errorf("write size_count: %w", err)
	}
	for key, size := range t.Size {
		if err := writeKeyedU64(w, key, size); err != nil {
			return fmt.Errorf("write size record: %w", err)
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(t.Events))); err != nil {
		return fmt.Errorf("write event_count: %w", err)
	}
	for _, ev := range t.Events {
		if err := binary.Write(w, binary.LittleEndian, ev.TimestampNs); err != nil {
			return err
		}
		if err := writeKey(w, ev.Key); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, ev.SizeBytes); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint8(ev.Op)); err != nil {
			return err
		}
		if _, err := w.Write(traceEventPadding[:]); err != nil {
			return err
		}
	}
	return nil
}

// traceEventSize is sizeof(TraceEvent) under natural alignment: an
// 8-byte ts_ns, a 16-byte FileKey, an 8-byte size, and a 1-byte op tag
// padded out to the struct's 8-byte alignment (§6). traceEventPadding
// is the zero filler written after the op byte to reach that size.
const traceEventSize = 40

var traceEventPadding [traceEventSize - 8 - 16 - 8 - 1]byte

func writeKey(w io.Writer, key types.FileKey) error {
	if err := binary.Write(w, binary.LittleEndian, key.Device); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, key.Inode)
}

func writeKeyedU64(w io.Writer, key types.FileKey, value uint64) error {
	if err := writeKey(w, key); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, value)
}

// Load reads a trace previously written by Save. Load(Save(t)) must be
// byte-for-byte lossless — the round-trip law in §8.
func Load(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()
	return readTrace(bufio.NewReader(f))
}

func readTrace(r io.Reader) (*Trace, error) {
	t := &Trace{
		Access: make(types.AccessDistribution),
		Size:   make(types.SizeDistribution),
	}

	var hitCount uint64
	if err := binary.Read(r, binary.LittleEndian, &hitCount); err != nil {
		return nil, fmt.Errorf("read hit_count: %w", err)
	}
	for i := uint64(0); i < hitCount; i++ {
		key, hits, err := readKeyedU64(r)
		if err != nil {
			return nil, fmt.Errorf("read access record: %w", err)
		}
		t.Access[key] = hits
	}

	var sizeCount uint64
	if err := binary.Read(r, binary.LittleEndian, &sizeCount); err != nil {
		return nil, fmt.Errorf("read size_count: %w", err)
	}
	for i := uint64(0); i < sizeCount; i++ {
		key, size, err := readKeyedU64(r)
		if err != nil {
			return nil, fmt.Errorf("read size record: %w", err)
		}
		t.Size[key] = size
	}

	var eventCount uint64
	if err := binary.Read(r, binary.LittleEndian, &eventCount); err != nil {
		return nil, fmt.Errorf("read event_count: %w", err)
	}
	t.Events = make([]types.TraceEvent, 0, eventCount)
	for i := uint64(0); i < eventCount; i++ {
		var ev types.TraceEvent
		if err := binary.Read(r, binary.LittleEndian, &ev.TimestampNs); err != nil {
			return nil, fmt.Errorf("read event timestamp: %w", err)
		}
		key, err := readKey(r)
		if err != nil {
			return nil, fmt.Errorf("read event key: %w", err)
		}
		ev.Key = key
		if err := binary.Read(r, binary.LittleEndian, &ev.SizeBytes); err != nil {
			return nil, fmt.Errorf("read event size: %w", err)
		}
		var op uint8
		if err := binary.Read(r, binary.LittleEndian, &op); err != nil {
			return nil, fmt.Errorf("read event op: %w", err)
		}
		ev.Op = types.Op(op)
		if _, err := io.ReadFull(r, make([]byte, len(traceEventPadding))); err != nil {
			return nil, fmt.Errorf("read event padding: %w", err)
		}
		t.Events = append(t.Events, ev)
	}

	return t, nil
}

func readKey(r io.Reader) (types.FileKey, error) {
	var key types.FileKey
	if err := binary.Read(r, binary.LittleEndian, &key.Device); err != nil {
		return key, err
	}
	if err := binary.Read(r, binary.LittleEndian, &key.Inode); err != nil {
		return key, err
	}
	return key, nil
}

func readKeyedU64(r io.Reader) (types.FileKey, uint64, error) {
	key, err := readKey(r)
	if err != nil {
		return key, 0, err
	}
	var value uint64
	if err := binary.Read(r, binary.LittleEndian, &value); err != nil {
		return key, 0, err
	}
	return key, value, nil
}
