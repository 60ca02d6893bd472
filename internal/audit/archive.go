package audit

import (
	"fmt"
	"net/url"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"main/internal/schema"
)

const (
	defaultArchiveHost      = "localhost"
	defaultArchivePort      = 5432
	defaultArchiveSSLMode   = "disable"
	defaultArchiveBatchSize = 256
)

// ArchiveConfig defines the PostgreSQL archive connection.
type ArchiveConfig struct {
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	User       string            `json:"user"`
	Password   string            `json:"password"`
	Database   string            `json:"database"`
	SSLMode    string            `json:"sslMode"`
	Params     map[string]string `json:"params"`
	ConnString string            `json:"connString"`
	BatchSize  int               `json:"batchSize"`
}

func (c ArchiveConfig) dsn() string {
	if c.ConnString != "" {
		return c.ConnString
	}

	host := c.Host
	if host == "" {
		host = defaultArchiveHost
	}
	port := c.Port
	if port == 0 {
		port = defaultArchivePort
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = defaultArchiveSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.Database != "" {
		u.Path = "/" + c.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range c.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()

	return u.String()
}

// ArchiveRecord is one audit event row.
type ArchiveRecord struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	Seq     uint64 `gorm:"index"`
	Type    uint16
	Version uint16
	Source  uint16
	TsEvent int64
	TsRecv  int64
	TraceID uint64
	Payload []byte
}

// TableName sets the archive table.
func (ArchiveRecord) TableName() string { return "audit_events" }

// ArchiveSink persists audit events to PostgreSQL in batches. Writes
// are buffered and flushed once the batch size is reached or on Close.
type ArchiveSink struct {
	db        *gorm.DB
	batchSize int

	mu      sync.Mutex
	pending []ArchiveRecord
}

// NewArchiveSink opens the database and migrates the archive table.
func NewArchiveSink(cfg ArchiveConfig) (*ArchiveSink, error) {
	db, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&ArchiveRecord{}); err != nil {
		return nil, err
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultArchiveBatchSize
	}
	return &ArchiveSink{
		db:        db,
		batchSize: batchSize,
		pending:   make([]ArchiveRecord, 0, batchSize),
	}, nil
}

func (s *ArchiveSink) Write(header schema.EventHeader, payload []byte) error {
	record := ArchiveRecord{
		Seq:     header.Seq,
		Type:    uint16(header.Type),
		Version: header.Version,
		Source:  header.Source,
		TsEvent: header.TsEvent,
		TsRecv:  header.TsRecv,
		TraceID: header.TraceID,
	}
	if len(payload) > 0 {
		record.Payload = make([]byte, len(payload))
		copy(record.Payload, payload)
	}

	s.mu.Lock()
	s.pending = append(s.pending, record)
	if len(s.pending) < s.batchSize {
		s.mu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = make([]ArchiveRecord, 0, s.batchSize)
	s.mu.Unlock()

	return s.db.CreateInBatches(batch, s.batchSize).Error
}

// Flush writes any buffered rows immediately.
func (s *ArchiveSink) Flush() error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = make([]ArchiveRecord, 0, s.batchSize)
	s.mu.Unlock()

	return s.db.CreateInBatches(batch, s.batchSize).Error
}

// Close flushes remaining rows and closes the connection pool.
func (s *ArchiveSink) Close() error {
	flushErr := s.Flush()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if closeErr := sqlDB.Close(); closeErr != nil {
		return closeErr
	}
	return flushErr
}
