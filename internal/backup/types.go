package backup

import (
	"fmt"
	"slices"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
)

// DataType is one restorable section of a backup.
type DataType string

const (
	DataCampaign  DataType = "campaign"
	DataGuests    DataType = "guests"
	DataBlockList DataType = "blocklist"
)

// AllDataTypes lists every data type in dependency order.
var AllDataTypes = []DataType{DataCampaign, DataGuests, DataBlockList}

// dependencies maps a data type to the types that must exist before it.
var dependencies = map[DataType][]DataType{
	DataGuests: {DataCampaign},
}

// ParseDataTypes validates names and returns them in dependency order
// without duplicates. An empty input means every type.
func ParseDataTypes(names []string) ([]DataType, error) {
	if len(names) == 0 {
		return slices.Clone(AllDataTypes), nil
	}
	seen := make(map[DataType]bool, len(names))
	for _, n := range names {
		dt := DataType(n)
		if !slices.Contains(AllDataTypes, dt) {
			return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown data type %q", n))
		}
		seen[dt] = true
	}
	return orderTypes(seen), nil
}

func orderTypes(set map[DataType]bool) []DataType {
	out := make([]DataType, 0, len(set))
	for _, dt := range AllDataTypes {
		if set[dt] {
			out = append(out, dt)
		}
	}
	return out
}

// FormatVersion is the payload and metadata version written by this package.
const FormatVersion = 1

// Encryption describes how a payload was sealed.
type Encryption struct {
	Algorithm     Algorithm `json:"algorithm"`
	KeyDerivation string    `json:"keyDerivation"`
	Salt          []byte    `json:"salt"`
}

// Metadata is the companion record of a payload.
type Metadata struct {
	Version      int              `json:"version"`
	ID           string           `json:"backupId"`
	CreatedAt    time.Time        `json:"createdAt"`
	DataTypes    []DataType       `json:"dataTypes"`
	RecordCounts map[DataType]int `json:"recordCounts"`
	Checksum     string           `json:"checksum"`
	Size         int64            `json:"size"`
	Compressed   bool             `json:"compressed"`
	Encryption   *Encryption      `json:"encryption,omitempty"`
}

// Encrypted reports whether the payload is sealed.
func (m *Metadata) Encrypted() bool {
	return m.Encryption != nil
}

func (m *Metadata) hasType(dt DataType) bool {
	return slices.Contains(m.DataTypes, dt)
}

// Options configures CreateBackup. Nil Encrypt and Compress use the
// service defaults.
type Options struct {
	Encrypt   *bool
	Compress  *bool
	DataTypes []DataType
}

// Backup is a created backup. Payload is the stored bytes.
type Backup struct {
	Metadata Metadata
	Payload  []byte
}

// RestoreOptions configures RestoreFromBackup.
type RestoreOptions struct {
	// ValidateChecksum selects strict structure checks. The checksum itself
	// is verified regardless.
	ValidateChecksum bool
	// SelectiveTypes restricts the restore. Empty restores every type in
	// the backup.
	SelectiveTypes []DataType
	// DryRun reports what would be restored without writing.
	DryRun bool
	// Overwrite replaces live records that also exist in the backup.
	Overwrite bool
}

// PlanStep is one step of a RecoveryPlan.
type PlanStep struct {
	Name        string        `json:"name"`
	DataType    DataType      `json:"dataType,omitempty"`
	Records     int           `json:"records"`
	Estimated   time.Duration `json:"estimated"`
	Description string        `json:"description"`
}

// RecoveryPlan previews a full restore of a backup.
type RecoveryPlan struct {
	BackupID           string        `json:"backupId"`
	Steps              []PlanStep    `json:"steps"`
	TotalEstimatedTime time.Duration `json:"totalEstimatedTime"`
	Risks              []string      `json:"risks"`
}

// Validation is the outcome of ValidateBackup.
type Validation struct {
	IsValid        bool     `json:"isValid"`
	ChecksumMatch  bool     `json:"checksumMatch"`
	StructureValid bool     `json:"structureValid"`
	DataIntegrity  bool     `json:"dataIntegrity"`
	Warnings       []string `json:"warnings"`
	Errors         []string `json:"errors,omitempty"`
}

// CleanupResult reports what Cleanup removed.
type CleanupResult struct {
	Deleted        int   `json:"deleted"`
	ReclaimedBytes int64 `json:"reclaimedBytes"`
}
