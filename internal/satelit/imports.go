package satelit

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type (
	// FailedImport holds the title ids an import of IndexID couldn't ingest.
	// They get resubmitted with the next import of the same source.
	FailedImport struct {
		ID       string   `db:"id"`
		IndexID  string   `db:"index_id"`
		TitleIDs TitleIDs `db:"title_ids"`

		// Set once the ids have been handed to a later import.
		Reimported bool `db:"reimported"`

		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	FailedImportRepo interface {
		// The newest failed import for the source that hasn't been reimported.
		// Nil when there is none.
		WithSource(ctx context.Context, src Source) (*FailedImport, error)
		Create(ctx context.Context, index IndexFile, ids []int32) (FailedImport, error)
		MarkReimported(ctx context.Context, failed FailedImport) (FailedImport, error)
	}

	// Transactor runs fn with repositories bound to a single transaction.
	//
	// The transaction commits if fn returns nil and rolls back otherwise.
	Transactor interface {
		InTx(ctx context.Context, fn func(ctx context.Context, indexes IndexFileRepo, failed FailedImportRepo) error) error
	}
)

// TitleIDs is an ordered list of catalog title ids, stored as a JSON array.
type TitleIDs []int32

// Value implements [driver.Valuer].
func (ids TitleIDs) Value() (driver.Value, error) {
	if ids == nil {
		ids = TitleIDs{}
	}

	byts, err := json.Marshal([]int32(ids))
	if err != nil {
		return nil, fmt.Errorf("error encoding title ids: %w", err)
	}

	return string(byts), nil
}

// Scan implements [sql.Scanner].
func (ids *TitleIDs) Scan(src any) error {
	var byts []byte
	switch src := src.(type) {
	case nil:
		*ids = TitleIDs{}
		return nil
	case string:
		byts = []byte(src)
	case []byte:
		byts = src
	default:
		return fmt.Errorf("unsupported type for title ids: %T", src)
	}

	var decoded []int32
	if err := json.Unmarshal(byts, &decoded); err != nil {
		return fmt.Errorf("error decoding title ids: %w", err)
	}
	if decoded == nil {
		decoded = []int32{}
	}

	*ids = decoded
	return nil
}
