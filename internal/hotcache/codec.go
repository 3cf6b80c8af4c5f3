package hotcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/evaonline/matopiba-pipeline/internal/snapshot"
)

// codecMagic and codecVersion tag every encoded snapshot so a future
// format change fails loudly on decode instead of silently misreading
// bytes. This is a hand-rolled tagged binary encoding, not a reach for
// a general-purpose serialization library: the hot cache's only
// requirement is that two snapshots built from identical inputs encode
// to identical bytes, and a length-prefixed walk of a small, fixed
// record shape gets that for free without pulling in a schema-driven
// serializer for what is, structurally, one flat struct.
const (
	codecMagic   = "MTPB"
	codecVersion = byte(1)
)

// EncodeSnapshot serializes a Snapshot deterministically: map iteration
// is eliminated by sorting city codes before writing, so two snapshots
// built from identical inputs always produce identical bytes.
func EncodeSnapshot(s snapshot.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(codecMagic)
	buf.WriteByte(codecVersion)

	codes := make([]string, 0, len(s.Forecasts))
	for code := range s.Forecasts {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	writeUint32(&buf, uint32(len(codes)))
	for _, code := range codes {
		entry := s.Forecasts[code]
		writeString(&buf, code)
		writeString(&buf, entry.CityName)
		writeString(&buf, entry.State)
		writeFloat64(&buf, entry.Latitude)
		writeFloat64(&buf, entry.Longitude)
		writeFloat64(&buf, entry.ElevationM)

		writeUint32(&buf, uint32(len(entry.Days)))
		for _, d := range entry.Days {
			writeString(&buf, d.DateLocal)
			writeFloat64(&buf, d.TMaxC)
			writeFloat64(&buf, d.TMinC)
			writeFloat64(&buf, d.TMeanC)
			writeFloat64(&buf, d.RHMeanPct)
			writeFloat64(&buf, d.WSMeanMS)
			writeFloat64(&buf, d.RadiationSumMJM2)
			writeFloat64(&buf, d.PrecipitationSumMM)
			writeFloat64(&buf, d.EtoModelMMDay)
			writeFloat64(&buf, d.EtoProviderMMDay)
		}
	}

	writeFloat64(&buf, s.Validation.R2)
	writeFloat64(&buf, s.Validation.RMSEMMDay)
	writeFloat64(&buf, s.Validation.BiasMMDay)
	writeFloat64(&buf, s.Validation.MAEMMDay)
	writeUint32(&buf, uint32(s.Validation.NSamples))
	writeString(&buf, s.Validation.Quality)

	writeString(&buf, string(s.Metadata.RunLabel))
	writeTime(&buf, s.Metadata.UpdatedAtUTC)
	writeTime(&buf, s.Metadata.NextUpdateUTC)
	writeUint32(&buf, uint32(s.Metadata.NCitiesAttempted))
	writeUint32(&buf, uint32(s.Metadata.NCitiesSucceeded))
	writeFloat64(&buf, s.Metadata.SuccessRate)
	writeString(&buf, s.Metadata.Version)

	return buf.Bytes(), nil
}

// DecodeSnapshot reverses EncodeSnapshot.
func DecodeSnapshot(data []byte) (snapshot.Snapshot, error) {
	r := bytes.NewReader(data)

	magic := make([]byte, len(codecMagic))
	if _, err := r.Read(magic); err != nil || string(magic) != codecMagic {
		return snapshot.Snapshot{}, fmt.Errorf("hotcache: bad magic header")
	}
	version, err := r.ReadByte()
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("hotcache: truncated header: %w", err)
	}
	if version != codecVersion {
		return snapshot.Snapshot{}, fmt.Errorf("hotcache: unsupported codec version %d", version)
	}

	nCities, err := readUint32(r)
	if err != nil {
		return snapshot.Snapshot{}, err
	}

	forecasts := make(map[string]snapshot.CityEntry, nCities)
	for i := uint32(0); i < nCities; i++ {
		code, err := readString(r)
		if err != nil {
			return snapshot.Snapshot{}, err
		}
		var entry snapshot.CityEntry
		if entry.CityName, err = readString(r); err != nil {
			return snapshot.Snapshot{}, err
		}
		if entry.State, err = readString(r); err != nil {
			return snapshot.Snapshot{}, err
		}
		if entry.Latitude, err = readFloat64(r); err != nil {
			return snapshot.Snapshot{}, err
		}
		if entry.Longitude, err = readFloat64(r); err != nil {
			return snapshot.Snapshot{}, err
		}
		if entry.ElevationM, err = readFloat64(r); err != nil {
			return snapshot.Snapshot{}, err
		}

		nDays, err := readUint32(r)
		if err != nil {
			return snapshot.Snapshot{}, err
		}
		entry.Days = make([]snapshot.DailyForecast, nDays)
		for j := uint32(0); j < nDays; j++ {
			d := &entry.Days[j]
			if d.DateLocal, err = readString(r); err != nil {
				return snapshot.Snapshot{}, err
			}
			if d.TMaxC, err = readFloat64(r); err != nil {
				return snapshot.Snapshot{}, err
			}
			if d.TMinC, err = readFloat64(r); err != nil {
				return snapshot.Snapshot{}, err
			}
			if d.TMeanC, err = readFloat64(r); err != nil {
				return snapshot.Snapshot{}, err
			}
			if d.RHMeanPct, err = readFloat64(r); err != nil {
				return snapshot.Snapshot{}, err
			}
			if d.WSMeanMS, err = readFloat64(r); err != nil {
				return snapshot.Snapshot{}, err
			}
			if d.RadiationSumMJM2, err = readFloat64(r); err != nil {
				return snapshot.Snapshot{}, err
			}
			if d.PrecipitationSumMM, err = readFloat64(r); err != nil {
				return snapshot.Snapshot{}, err
			}
			if d.EtoModelMMDay, err = readFloat64(r); err != nil {
				return snapshot.Snapshot{}, err
			}
			if d.EtoProviderMMDay, err = readFloat64(r); err != nil {
				return snapshot.Snapshot{}, err
			}
		}
		forecasts[code] = entry
	}

	var s snapshot.Snapshot
	s.Forecasts = forecasts

	if s.Validation.R2, err = readFloat64(r); err != nil {
		return snapshot.Snapshot{}, err
	}
	if s.Validation.RMSEMMDay, err = readFloat64(r); err != nil {
		return snapshot.Snapshot{}, err
	}
	if s.Validation.BiasMMDay, err = readFloat64(r); err != nil {
		return snapshot.Snapshot{}, err
	}
	if s.Validation.MAEMMDay, err = readFloat64(r); err != nil {
		return snapshot.Snapshot{}, err
	}
	nSamples, err := readUint32(r)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	s.Validation.NSamples = int(nSamples)
	if s.Validation.Quality, err = readString(r); err != nil {
		return snapshot.Snapshot{}, err
	}

	runLabel, err := readString(r)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	s.Metadata.RunLabel = snapshot.RunLabel(runLabel)
	if s.Metadata.UpdatedAtUTC, err = readTime(r); err != nil {
		return snapshot.Snapshot{}, err
	}
	if s.Metadata.NextUpdateUTC, err = readTime(r); err != nil {
		return snapshot.Snapshot{}, err
	}
	nAttempted, err := readUint32(r)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	s.Metadata.NCitiesAttempted = int(nAttempted)
	nSucceeded, err := readUint32(r)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	s.Metadata.NCitiesSucceeded = int(nSucceeded)
	if s.Metadata.SuccessRate, err = readFloat64(r); err != nil {
		return snapshot.Snapshot{}, err
	}
	if s.Metadata.Version, err = readString(r); err != nil {
		return snapshot.Snapshot{}, err
	}

	return s, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeFloat64(buf *bytes.Buffer, v float64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	buf.Write(tmp[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeTime(buf *bytes.Buffer, t time.Time) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(t.UTC().UnixNano()))
	buf.Write(tmp[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, fmt.Errorf("hotcache: truncated uint32: %w", err)
	}
	return binary.BigEndian.Uint32(tmp[:]), nil
}

func readFloat64(r *bytes.Reader) (float64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, fmt.Errorf("hotcache: truncated float64: %w", err)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(tmp[:])), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("hotcache: truncated string: %w", err)
	}
	return string(buf), nil
}

func readTime(r *bytes.Reader) (time.Time, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return time.Time{}, fmt.Errorf("hotcache: truncated time: %w", err)
	}
	nanos := int64(binary.BigEndian.Uint64(tmp[:]))
	return time.Unix(0, nanos).UTC(), nil
}
