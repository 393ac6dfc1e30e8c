package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/aibroker/internal/domain/model"
	"github.com/ericfisherdev/aibroker/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Secrets are encrypted with AES-256-GCM before write and decrypted only on
// the single-credential paths (Get, AcquireForModel); listing returns a
// masked form.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for
// AES-256-GCM, or nil to disable credential storage (all operations will
// return ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

const credentialColumns = `id, owner_id, name, base_url, secret_encrypted, model_name,
	daily_limit, used_today, total_usage, is_active, last_used_at, created_at, updated_at`

// Add validates, encrypts and persists a new credential, returning its id.
func (r *CredentialRepo) Add(ctx context.Context, cred model.Credential, plaintextSecret string) (string, error) {
	if err := validateCredential(cred, plaintextSecret); err != nil {
		return "", err
	}

	encrypted, err := r.encrypt(plaintextSecret)
	if err != nil {
		return "", err
	}

	id := cred.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := formatTime(time.Now())

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insert = `
		INSERT INTO shared_credentials
			(id, owner_id, name, base_url, secret_encrypted, model_name, daily_limit, used_today, total_usage, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, insert,
		id, cred.OwnerID, cred.Name, cred.BaseURL, encrypted, cred.ModelName,
		cred.DailyLimit, boolToInt(cred.IsActive), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert credential: %w", err)
	}

	const insertTag = `INSERT INTO credential_tags (credential_id, tag) VALUES (?, ?)`
	for _, tag := range cred.Tags {
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, insertTag, id, tag); err != nil {
			return "", fmt.Errorf("insert credential tag %q: %w", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit credential: %w", err)
	}
	return id, nil
}

// Get returns the credential with its secret decrypted for immediate use.
// Returns (nil, nil) when no credential exists for the id.
func (r *CredentialRepo) Get(ctx context.Context, id string) (*model.Credential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	query := `SELECT ` + credentialColumns + ` FROM shared_credentials WHERE id = ?`
	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %q: %w", id, err)
	}

	cred.Secret, err = r.decrypt(cred.Secret)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential %q: %w", id, err)
	}

	if err := r.loadTags(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// ListByOwner returns the owner's credentials with masked secrets, newest first.
func (r *CredentialRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Credential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	query := `SELECT ` + credentialColumns + ` FROM shared_credentials WHERE owner_id = ? ORDER BY created_at DESC`
	rows, err := r.db.Reader.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}

		// Masking works on the plaintext so the caller sees a recognizable prefix.
		plaintext, err := r.decrypt(cred.Secret)
		if err != nil {
			return nil, fmt.Errorf("decrypt credential %q: %w", cred.ID, err)
		}
		cred.Secret = model.MaskSecret(plaintext)

		if err := r.loadTags(ctx, cred); err != nil {
			return nil, err
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// Update applies a partial update to the owner-mutable fields.
func (r *CredentialRepo) Update(ctx context.Context, id, ownerID string, patch model.CredentialPatch) error {
	if err := r.checkOwnership(ctx, id, ownerID); err != nil {
		return err
	}

	if patch.IsActive == nil && patch.DailyLimit == nil {
		return nil
	}

	const query = `
		UPDATE shared_credentials
		SET is_active = COALESCE(?, is_active),
		    daily_limit = COALESCE(?, daily_limit),
		    updated_at = ?
		WHERE id = ?
	`
	var isActive, dailyLimit any
	if patch.IsActive != nil {
		isActive = boolToInt(*patch.IsActive)
	}
	if patch.DailyLimit != nil {
		dailyLimit = *patch.DailyLimit
	}

	if _, err := r.db.Writer.ExecContext(ctx, query, isActive, dailyLimit, formatTime(time.Now()), id); err != nil {
		return fmt.Errorf("update credential %q: %w", id, err)
	}
	return nil
}

// Delete removes the credential and its tags.
func (r *CredentialRepo) Delete(ctx context.Context, id, ownerID string) error {
	if err := r.checkOwnership(ctx, id, ownerID); err != nil {
		return err
	}

	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM shared_credentials WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete credential %q: %w", id, err)
	}
	return nil
}

// AcquireForModel returns the least-loaded active credential for the model
// with remaining daily capacity, secret decrypted. NULL last_used_at sorts
// first under ASC, so never-used credentials win ties.
func (r *CredentialRepo) AcquireForModel(ctx context.Context, modelName string) (*model.Credential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	query := `
		SELECT ` + credentialColumns + `
		FROM shared_credentials
		WHERE is_active = 1 AND model_name = ? AND used_today < daily_limit
		ORDER BY used_today ASC, last_used_at ASC
		LIMIT 1
	`
	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, modelName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquire credential for model %q: %w", modelName, err)
	}

	cred.Secret, err = r.decrypt(cred.Secret)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential %q: %w", cred.ID, err)
	}
	return cred, nil
}

// IncrementUsage bumps the usage counters and stamps last_used_at.
func (r *CredentialRepo) IncrementUsage(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE shared_credentials
		SET used_today = used_today + 1,
		    total_usage = total_usage + 1,
		    last_used_at = ?,
		    updated_at = ?
		WHERE id = ?
	`
	stamp := formatTime(at)
	res, err := r.db.Writer.ExecContext(ctx, query, stamp, stamp, id)
	if err != nil {
		return fmt.Errorf("increment usage for credential %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return driven.ErrCredentialNotFound
	}
	return nil
}

// ResetDailyUsage zeroes used_today for every credential. The WHERE clause
// makes a repeated run in the same window a no-op.
func (r *CredentialRepo) ResetDailyUsage(ctx context.Context) (int64, error) {
	res, err := r.db.Writer.ExecContext(ctx,
		`UPDATE shared_credentials SET used_today = 0, updated_at = ? WHERE used_today <> 0`,
		formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("reset daily usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset daily usage rows: %w", err)
	}
	return n, nil
}

// checkOwnership distinguishes a missing credential from one owned by
// someone else so handlers can answer 404 vs 403.
func (r *CredentialRepo) checkOwnership(ctx context.Context, id, ownerID string) error {
	var owner string
	err := r.db.Reader.QueryRowContext(ctx, `SELECT owner_id FROM shared_credentials WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return driven.ErrCredentialNotFound
	}
	if err != nil {
		return fmt.Errorf("check credential owner %q: %w", id, err)
	}
	if owner != ownerID {
		return driven.ErrNotOwner
	}
	return nil
}

func (r *CredentialRepo) loadTags(ctx context.Context, cred *model.Credential) error {
	rows, err := r.db.Reader.QueryContext(ctx,
		`SELECT tag FROM credential_tags WHERE credential_id = ? ORDER BY tag`, cred.ID)
	if err != nil {
		return fmt.Errorf("load tags for credential %q: %w", cred.ID, err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate tags: %w", err)
	}
	cred.Tags = tags
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*model.Credential, error) {
	var cred model.Credential
	var isActive int
	var lastUsedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&cred.ID, &cred.OwnerID, &cred.Name, &cred.BaseURL, &cred.Secret, &cred.ModelName,
		&cred.DailyLimit, &cred.UsedToday, &cred.TotalUsage, &isActive, &lastUsedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	cred.IsActive = isActive != 0
	if lastUsedAt.Valid {
		t, err := parseTime(lastUsedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_used_at: %w", err)
		}
		cred.LastUsedAt = &t
	}
	if cred.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &cred, nil
}

func validateCredential(cred model.Credential, plaintextSecret string) error {
	switch {
	case cred.OwnerID == "":
		return fmt.Errorf("%w: owner id is required", driven.ErrInvalidCredential)
	case cred.Name == "":
		return fmt.Errorf("%w: name is required", driven.ErrInvalidCredential)
	case cred.ModelName == "":
		return fmt.Errorf("%w: model name is required", driven.ErrInvalidCredential)
	case plaintextSecret == "":
		return fmt.Errorf("%w: secret is required", driven.ErrInvalidCredential)
	case cred.DailyLimit <= 0:
		return fmt.Errorf("%w: daily limit must be positive", driven.ErrInvalidCredential)
	}

	u, err := url.Parse(cred.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: malformed base url %q", driven.ErrInvalidCredential, cred.BaseURL)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded
// string containing the nonce (12 bytes) prepended to the ciphertext.
func (r *CredentialRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *CredentialRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}
