package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// JSONBMap is a custom type for PostgreSQL JSONB columns that maps to map[string]interface{}
type JSONBMap map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONBMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface
func (j *JSONBMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONBMap)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*j = make(JSONBMap)
		return nil
	}

	if len(bytes) == 0 {
		*j = make(JSONBMap)
		return nil
	}

	result := make(JSONBMap)
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}
	*j = result
	return nil
}

// RunRecord is the persisted summary of one estimation run
type RunRecord struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	SnapshotID    uuid.UUID      `json:"snapshot_id" db:"snapshot_id"`
	DatasetName   string         `json:"dataset_name" db:"dataset_name"`
	Treatment     string         `json:"treatment" db:"treatment"`
	Outcome       string         `json:"outcome" db:"outcome"`
	Confounders   pq.StringArray `json:"confounders" db:"confounders"`
	Method        string         `json:"method" db:"method"`
	Estimate      float64        `json:"estimate" db:"estimate"`
	PartialIdent  bool           `json:"partial_identification" db:"partial_identification"`
	Refutations   JSONBMap       `json:"refutations" db:"refutations"`
	ElapsedMillis int64          `json:"elapsed_ms" db:"elapsed_ms"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}
