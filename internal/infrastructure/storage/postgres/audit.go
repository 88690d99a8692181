package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/domain/audit"
)

// CompressionAlgo specifies how the changes column is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// defaultCompressThreshold is the change-set size above which entries are compressed.
const defaultCompressThreshold = 8 * 1024

// auditRow is a row of sys_audit.
type auditRow struct {
	audit.Entry
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
}

// AuditLog stores audit entries in sys_audit. Large change sets are
// compressed with zstd.
type AuditLog struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ audit.Logger = (*AuditLog)(nil)

// NewAuditLog creates an audit log.
func NewAuditLog(txManager *TxManager) (*AuditLog, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditLog{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// LogChange records a change of an entity in the current transaction.
func (l *AuditLog) LogChange(ctx context.Context, entityType string, entityID id.ID, action audit.Action, changes map[string]any) error {
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}

	row := auditRow{
		Entry: audit.Entry{
			ID:         id.New(),
			TenantID:   appctx.GetTenantID(ctx),
			EntityType: entityType,
			EntityID:   entityID,
			Action:     action,
			Changes:    changesJSON,
			CreatedAt:  time.Now().UTC(),
		},
		CompressionAlgo: CompressionNone,
	}
	if u := appctx.GetUser(ctx); u != nil {
		row.UserID = u.UserID
		row.UserEmail = u.Email
	}

	if len(row.Changes) > l.compressThreshold {
		row.ChangesCompressed = l.encoder.EncodeAll(row.Changes, nil)
		row.Changes = nil
		row.CompressionAlgo = CompressionZstd
	}

	_, err = l.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_audit (
			id, tenant_id, entity_type, entity_id, action, user_id, user_email,
			changes, changes_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		row.ID, row.TenantID, row.EntityType, row.EntityID, row.Action,
		row.UserID, row.UserEmail,
		row.Changes, row.ChangesCompressed, row.CompressionAlgo, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", MapError(err))
	}
	return nil
}

// GetEntityHistory returns the newest entries of an entity first.
func (l *AuditLog) GetEntityHistory(ctx context.Context, entityType string, entityID id.ID, limit int) ([]audit.Entry, error) {
	var rows []auditRow
	err := pgxscan.Select(ctx, l.txManager.GetQuerier(ctx), &rows, `
		SELECT id, tenant_id, entity_type, entity_id, action, user_id, user_email,
		       changes, changes_compressed, compression_algo, created_at
		FROM sys_audit
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, appctx.GetTenantID(ctx), entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}

	entries := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		if r.CompressionAlgo == CompressionZstd && len(r.ChangesCompressed) > 0 {
			decoded, err := l.decoder.DecodeAll(r.ChangesCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress audit entry %s: %w", r.ID, err)
			}
			r.Changes = decoded
		}
		entries = append(entries, r.Entry)
	}
	return entries, nil
}
