package rpc

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

var errUUIDSize = errors.New("uuid has wrong size")

type (
	// ImportIntent asks the importer to import a snapshot, diffing it against the
	// previous one and retrying titles that were skipped before.
	ImportIntent struct {
		ID          uuid.UUID
		Source      Source
		NewIndexURL string
		OldIndexURL string // Empty when there's no previous snapshot
		ReimportIDs []int32
	}

	ImportIntentResult struct {
		ID         uuid.UUID
		SkippedIDs []int32 // Titles the importer couldn't ingest
	}

	// ScrapeIntent asks the scraper to scrape what the imports scheduled.
	ScrapeIntent struct {
		ID     uuid.UUID
		Source Source
	}

	ScrapeIntentResult struct {
		ID          uuid.UUID
		MayContinue bool // More scraping work is believed to be left
	}
)

// Field numbers, shared with the services' protobuf definitions.
const (
	fieldUUIDBytes protowire.Number = 1

	fieldImportID          protowire.Number = 1
	fieldImportSource      protowire.Number = 2
	fieldImportNewIndexURL protowire.Number = 3
	fieldImportOldIndexURL protowire.Number = 4
	fieldImportReimportIDs protowire.Number = 5

	fieldImportResultID         protowire.Number = 1
	fieldImportResultSkippedIDs protowire.Number = 2

	fieldScrapeID     protowire.Number = 1
	fieldScrapeSource protowire.Number = 2

	fieldScrapeResultID          protowire.Number = 1
	fieldScrapeResultMayContinue protowire.Number = 2
)

func (m *ImportIntent) Marshal() ([]byte, error) {
	var b []byte
	b = appendUUID(b, fieldImportID, m.ID)
	b = appendEnum(b, fieldImportSource, int32(m.Source))
	b = appendString(b, fieldImportNewIndexURL, m.NewIndexURL)
	b = appendString(b, fieldImportOldIndexURL, m.OldIndexURL)
	b = appendSint32s(b, fieldImportReimportIDs, m.ReimportIDs)
	return b, nil
}

func (m *ImportIntent) Unmarshal(b []byte) error {
	*m = ImportIntent{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldImportID && typ == protowire.BytesType:
			return consumeUUID(b, &m.ID)
		case num == fieldImportSource && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Source = Source(int32(v))
			return n, nil
		case num == fieldImportNewIndexURL && typ == protowire.BytesType:
			return consumeString(b, &m.NewIndexURL)
		case num == fieldImportOldIndexURL && typ == protowire.BytesType:
			return consumeString(b, &m.OldIndexURL)
		case num == fieldImportReimportIDs:
			return consumeSint32s(b, typ, &m.ReimportIDs)
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

func (m *ImportIntentResult) Marshal() ([]byte, error) {
	var b []byte
	b = appendUUID(b, fieldImportResultID, m.ID)
	b = appendSint32s(b, fieldImportResultSkippedIDs, m.SkippedIDs)
	return b, nil
}

func (m *ImportIntentResult) Unmarshal(b []byte) error {
	*m = ImportIntentResult{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldImportResultID && typ == protowire.BytesType:
			return consumeUUID(b, &m.ID)
		case num == fieldImportResultSkippedIDs:
			return consumeSint32s(b, typ, &m.SkippedIDs)
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

func (m *ScrapeIntent) Marshal() ([]byte, error) {
	var b []byte
	b = appendUUID(b, fieldScrapeID, m.ID)
	b = appendEnum(b, fieldScrapeSource, int32(m.Source))
	return b, nil
}

func (m *ScrapeIntent) Unmarshal(b []byte) error {
	*m = ScrapeIntent{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldScrapeID && typ == protowire.BytesType:
			return consumeUUID(b, &m.ID)
		case num == fieldScrapeSource && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Source = Source(int32(v))
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

func (m *ScrapeIntentResult) Marshal() ([]byte, error) {
	var b []byte
	b = appendUUID(b, fieldScrapeResultID, m.ID)
	if m.MayContinue {
		b = protowire.AppendTag(b, fieldScrapeResultMayContinue, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b, nil
}

func (m *ScrapeIntentResult) Unmarshal(b []byte) error {
	*m = ScrapeIntentResult{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldScrapeResultID && typ == protowire.BytesType:
			return consumeUUID(b, &m.ID)
		case num == fieldScrapeResultMayContinue && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.MayContinue = protowire.DecodeBool(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// Proto3 leaves default values off the wire, and so does every append below.

func appendUUID(b []byte, num protowire.Number, id uuid.UUID) []byte {
	if id == uuid.Nil {
		return b
	}

	var inner []byte
	inner = protowire.AppendTag(inner, fieldUUIDBytes, protowire.BytesType)
	inner = protowire.AppendBytes(inner, id[:])

	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func appendEnum(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// appendSint32s writes ids packed, as proto3 does for repeated scalars.
func appendSint32s(b []byte, num protowire.Number, ids []int32) []byte {
	if len(ids) == 0 {
		return b
	}

	var packed []byte
	for _, id := range ids {
		packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(id)))
	}

	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// consumeFields walks every field in b. fn consumes the value of each one and
// reports how many bytes it took, or a negative protowire error code.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("error decoding field %d: %w", num, err)
		}
		if n < 0 {
			return fmt.Errorf("error decoding field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}

	return nil
}

func consumeString(b []byte, dst *string) (int, error) {
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return n, nil
	}
	*dst = v
	return n, nil
}

func consumeUUID(b []byte, dst *uuid.UUID) (int, error) {
	inner, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}

	var raw []byte
	err := consumeFields(inner, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldUUIDBytes && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			raw = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return 0, err
	}

	switch len(raw) {
	case 0:
		*dst = uuid.Nil
	case 16:
		copy(dst[:], raw)
	default:
		return 0, fmt.Errorf("%w: %d bytes", errUUIDSize, len(raw))
	}

	return n, nil
}

// consumeSint32s appends to dst from either a packed or a single unpacked value.
func consumeSint32s(b []byte, typ protowire.Type, dst *[]int32) (int, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return n, nil
		}
		*dst = append(*dst, int32(protowire.DecodeZigZag(v)))
		return n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return m, nil
			}
			*dst = append(*dst, int32(protowire.DecodeZigZag(v)))
			packed = packed[m:]
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected wire type %d for repeated sint32", typ)
	}
}
