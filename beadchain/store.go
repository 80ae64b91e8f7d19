package beadchain

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chadboar/heartbeat-core/crypto"
)

// beadRow is the gorm-mapped persisted shape of a Bead. Content and
// Attestation are stored as JSON columns with a discriminator so the table
// can be queried by type without deserializing every row, mirroring the
// teacher's models.Voucher / models.Invoice JSON-column usage
// (ComplianceTags, TravelRulePacket `gorm:"type:jsonb"`).
type beadRow struct {
	BeadID        string    `gorm:"type:text;primaryKey"`
	BeadType      string    `gorm:"size:32;index"`
	TemporalClass string    `gorm:"size:16;index"`
	WorldTimeFrom *time.Time `gorm:"index"`
	WorldTimeTo   *time.Time `gorm:"index"`
	KnowledgeTime time.Time `gorm:"index"`

	SourceType    string `gorm:"size:64"`
	SourceID      string `gorm:"size:128"`
	SourceVersion string `gorm:"size:32"`

	HashSelf      string  `gorm:"size:64;uniqueIndex"`
	HashPrev      string  `gorm:"size:64;index"`
	MerkleBatchID *string `gorm:"size:36;index"`

	AttestationJSON string `gorm:"type:text"`
	Status          string `gorm:"size:16;index"`

	ContentType string `gorm:"size:32;index"`
	ContentJSON string `gorm:"type:text"`

	TokenMint string `gorm:"size:64;index"`
	Tag       string `gorm:"size:64;index"`
	Stream    string `gorm:"size:64;index"`

	CreatedAt time.Time `gorm:"index"`
}

func (beadRow) TableName() string { return "beads" }

// lineageRow is one edge of the bead_lineage table: (bead_id, parent_id, position).
type lineageRow struct {
	BeadID   string `gorm:"size:36;index:idx_lineage_bead"`
	ParentID string `gorm:"size:36;index:idx_lineage_parent"`
	Position int
}

func (lineageRow) TableName() string { return "bead_lineage" }

// merkleBatchRow is the gorm-mapped persisted shape of a MerkleBatch.
type merkleBatchRow struct {
	BatchID       string    `gorm:"type:text;primaryKey"`
	MerkleRoot    string    `gorm:"size:64;index"`
	BeadCount     int       `gorm:"index"`
	TriggerType   string    `gorm:"size:32;index"`
	TriggerBeadID *string   `gorm:"size:36"`
	AnchorTx      *string   `gorm:"size:128"`
	CreatedAt     time.Time `gorm:"index"`
}

func (merkleBatchRow) TableName() string { return "merkle_batches" }

// Store is the bead chain's single-writer gorm handle, opened once per
// cycle per spec.md section 9's "global state" note.
type Store struct {
	db       *gorm.DB
	attester *crypto.AttesterKey
	codeHash string
	nowFn    func() time.Time
}

// Open opens (creating if absent) the SQLite-backed bead database with
// write-ahead logging enabled, as spec.md section 4.4 requires for
// concurrent safety, and runs schema migration.
func Open(path string, attester *crypto.AttesterKey, codeHash string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("beadchain: open store: %w", err)
	}
	if err := db.AutoMigrate(&beadRow{}, &lineageRow{}, &merkleBatchRow{}); err != nil {
		return nil, fmt.Errorf("beadchain: migrate schema: %w", err)
	}
	return &Store{db: db, attester: attester, codeHash: codeHash, nowFn: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func parseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}
