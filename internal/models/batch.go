package models

import (
	"time"

	"gorm.io/datatypes"
)

// Batch is the working set of records currently loaded for scanning.
// Exactly one batch is active per process; only the host mutates an
// active batch's records as a result of scans.
type Batch struct {
	ID               string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name             string    `gorm:"type:varchar(255);not null" json:"name"`
	PrimaryKeyColumn string    `gorm:"type:varchar(255);not null" json:"primaryKeyColumn"`
	Version          int64     `gorm:"default:0" json:"version"`
	Records          []Record  `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE" json:"records"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (Batch) TableName() string {
	return "batches"
}

// Record is one row of an imported batch. ID equals the value of the
// batch's primary-key column and is unique within the batch.
type Record struct {
	BatchID   string            `gorm:"type:varchar(64);primaryKey" json:"batchId"`
	ID        string            `gorm:"type:varchar(255);primaryKey" json:"id"`
	Fields    datatypes.JSONMap `gorm:"type:jsonb" json:"fields"`
	Scanned   bool              `gorm:"default:false" json:"scanned"`
	ScannedAt *time.Time        `json:"scannedAt,omitempty"`
}

// TableName specifies the table name
func (Record) TableName() string {
	return "records"
}

// Clone returns a deep copy safe to hand across goroutines.
func (r Record) Clone() Record {
	cp := r
	cp.Fields = make(datatypes.JSONMap, len(r.Fields))
	for k, v := range r.Fields {
		cp.Fields[k] = v
	}
	if r.ScannedAt != nil {
		t := *r.ScannedAt
		cp.ScannedAt = &t
	}
	return cp
}

// Field returns the string value of a field, or "" when absent.
func (r Record) Field(name string) string {
	if v, ok := r.Fields[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Clone deep-copies the batch including its records.
func (b Batch) Clone() Batch {
	cp := b
	cp.Records = make([]Record, len(b.Records))
	for i, r := range b.Records {
		cp.Records[i] = r.Clone()
	}
	return cp
}

// WorkstationState is the single-row table holding per-process
// restoration hints: the active batch and how the sync session was
// armed before the last shutdown. The sync layer itself is stateless;
// main re-arms it from these hints on startup.
type WorkstationState struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ActiveBatchID string    `gorm:"type:varchar(64)" json:"activeBatchId"`
	LastRole      string    `gorm:"type:varchar(16);default:standalone" json:"lastRole"`
	LastHostAddr  string    `gorm:"type:varchar(255)" json:"lastHostAddr"`
	PrinterID     string    `gorm:"type:varchar(128)" json:"printerId"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (WorkstationState) TableName() string {
	return "workstation_state"
}
