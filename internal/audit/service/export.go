package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"time"

	auditdomain "github.com/cityofhelsinki/mvj/internal/audit/domain"
	"gorm.io/gorm"
)

type ExportService struct {
	db *gorm.DB
}

func NewExportService(db *gorm.DB) auditdomain.ExportService {
	return &ExportService{db: db}
}

// exportRecord is one audit entry as written to both export formats.
type exportRecord struct {
	ID         string         `json:"id"`
	Timestamp  string         `json:"timestamp"`
	ActorType  string         `json:"actor_type"`
	ActorID    string         `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

var csvHeader = []string{"id", "timestamp", "actor_type", "actor_id", "action", "target_type", "target_id", "metadata"}

func newExportRecord(entry auditdomain.AuditLog) exportRecord {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return exportRecord{
		ID:         entry.ID.String(),
		Timestamp:  entry.CreatedAt.UTC().Format(time.RFC3339),
		ActorType:  entry.ActorType,
		ActorID:    deref(entry.ActorID),
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   deref(entry.TargetID),
		Metadata:   entry.Metadata,
	}
}

func (r exportRecord) csvRow() ([]string, error) {
	metadata := ""
	if len(r.Metadata) > 0 {
		raw, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, err
		}
		metadata = string(raw)
	}
	return []string{r.ID, r.Timestamp, r.ActorType, r.ActorID, r.Action, r.TargetType, r.TargetID, metadata}, nil
}

func (s *ExportService) Export(ctx context.Context, req auditdomain.ExportRequest) (*auditdomain.ExportResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&auditdomain.AuditLog{}).
		Where("created_at >= ? AND created_at < ?", req.StartDate, req.EndDate).
		Order("created_at ASC, id ASC")
	if len(req.Actions) > 0 {
		query = query.Where("action IN ?", req.Actions)
	}
	if len(req.TargetTypes) > 0 {
		query = query.Where("target_type IN ?", req.TargetTypes)
	}

	rows, err := query.Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []exportRecord{}
	for rows.Next() {
		var entry auditdomain.AuditLog
		if err := s.db.ScanRows(rows, &entry); err != nil {
			return nil, err
		}
		records = append(records, newExportRecord(entry))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var data []byte
	if req.Format == auditdomain.ExportFormatCSV {
		data, err = renderCSV(records)
	} else {
		data, err = json.MarshalIndent(records, "", "  ")
	}
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	return &auditdomain.ExportResult{
		Data:     data,
		Checksum: hex.EncodeToString(sum[:]),
		Format:   req.Format,
		Count:    len(records),
	}, nil
}

func renderCSV(records []exportRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range records {
		row, err := r.csvRow()
		if err != nil {
			return nil, err
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
