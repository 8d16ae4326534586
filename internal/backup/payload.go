package backup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/yndnr/rsvpguard/internal/core/domain"
)

// maxDecodedSize bounds decompression of a single payload.
const maxDecodedSize = 1 << 30

// document is the plaintext payload.
type document struct {
	Version   int                   `json:"version"`
	Campaign  *domain.Campaign      `json:"campaign,omitempty"`
	Guests    []*domain.GuestRecord `json:"guests,omitempty"`
	BlockList []domain.BlockEntry   `json:"blocklist,omitempty"`
}

func (d *document) counts(types []DataType) map[DataType]int {
	out := make(map[DataType]int, len(types))
	for _, dt := range types {
		out[dt] = d.count(dt)
	}
	return out
}

func (d *document) count(dt DataType) int {
	switch dt {
	case DataCampaign:
		if d.Campaign != nil {
			return 1
		}
	case DataGuests:
		return len(d.Guests)
	case DataBlockList:
		return len(d.BlockList)
	}
	return 0
}

// checksum is the hex SHA-256 of b.
func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func compress(b []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("backup: zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(b, make([]byte, 0, len(b)/4)), nil
}

func decompress(b []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		return nil, fmt.Errorf("backup: zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("backup: decompress: %w", err)
	}
	return out, nil
}

// encode serializes doc into the stored payload described by meta. It fills
// meta.Encryption.Salt when meta.Encryption is set.
func encode(doc *document, meta *Metadata, keys *keyring) ([]byte, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("backup: marshal: %w", err)
	}
	if meta.Compressed {
		if body, err = compress(body); err != nil {
			return nil, err
		}
	}
	if meta.Encryption != nil {
		sealed, salt, err := keys.seal(meta.Encryption.Algorithm, body, []byte(meta.ID))
		if err != nil {
			return nil, err
		}
		meta.Encryption.Salt = salt
		body = sealed
	}
	return body, nil
}

// decode reverses encode. The caller must have verified the checksum.
func decode(payload []byte, meta *Metadata, keys *keyring) (*document, error) {
	body := payload
	if meta.Encryption != nil {
		plain, err := keys.open(meta.Encryption.Algorithm, body, meta.Encryption.Salt, []byte(meta.ID))
		if err != nil {
			return nil, err
		}
		body = plain
	}
	if meta.Compressed {
		var err error
		if body, err = decompress(body); err != nil {
			return nil, err
		}
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("backup: unmarshal: %w", err)
	}
	if doc.Version != FormatVersion {
		return nil, fmt.Errorf("backup: unsupported payload version %d", doc.Version)
	}
	return &doc, nil
}
