package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"whatshub/internal/migrations"
	"whatshub/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("invalid database path")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(migrations.GetInitialSchema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := NewEncryptor()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: enc}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Account operations

func (d *Database) SaveAccount(ctx context.Context, acc *models.Account) error {
	encToken, err := d.encryptor.Encrypt(acc.Token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}
	encSecret, err := d.encryptor.Encrypt(acc.AppSecret)
	if err != nil {
		return fmt.Errorf("failed to encrypt app secret: %w", err)
	}

	_, err = d.db.ExecContext(ctx, upsertAccountQuery,
		acc.Name, acc.PhoneNumberID, encToken, encSecret,
		acc.Status, acc.APIBaseURL, acc.APIVersion)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (d *Database) scanAccount(row *sql.Row) (*models.Account, error) {
	acc := &models.Account{}
	err := row.Scan(&acc.Name, &acc.PhoneNumberID, &acc.Token, &acc.AppSecret,
		&acc.Status, &acc.APIBaseURL, &acc.APIVersion, &acc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return d.decryptAccount(acc)
}

func (d *Database) decryptAccount(acc *models.Account) (*models.Account, error) {
	var err error
	acc.Token, err = d.encryptor.Decrypt(acc.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}
	acc.AppSecret, err = d.encryptor.Decrypt(acc.AppSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt app secret: %w", err)
	}
	return acc, nil
}

// GetAccountByPhoneNumberID resolves the owning account of a webhook event.
// Returns nil, nil when no account is provisioned for the number.
func (d *Database) GetAccountByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Account, error) {
	query := `SELECT ` + selectAccountColumns + ` FROM accounts WHERE phone_number_id = ?`
	return d.scanAccount(d.db.QueryRowContext(ctx, query, phoneNumberID))
}

func (d *Database) GetAccount(ctx context.Context, name string) (*models.Account, error) {
	query := `SELECT ` + selectAccountColumns + ` FROM accounts WHERE name = ?`
	return d.scanAccount(d.db.QueryRowContext(ctx, query, name))
}

func (d *Database) ListActiveAccounts(ctx context.Context) ([]models.Account, error) {
	query := `SELECT ` + selectAccountColumns + ` FROM accounts WHERE status = ?`
	rows, err := d.db.QueryContext(ctx, query, models.AccountActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		acc := models.Account{}
		if err := rows.Scan(&acc.Name, &acc.PhoneNumberID, &acc.Token, &acc.AppSecret,
			&acc.Status, &acc.APIBaseURL, &acc.APIVersion, &acc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		dec, err := d.decryptAccount(&acc)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *dec)
	}
	return accounts, rows.Err()
}

// Contact operations

func (d *Database) SaveContact(ctx context.Context, contact *models.Contact) error {
	tags, err := json.Marshal(contact.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		INSERT INTO contacts (name, phone, tags) VALUES (?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET name = excluded.name, tags = excluded.tags
	`
	if _, err := d.db.ExecContext(ctx, query, contact.Name, contact.Phone, string(tags)); err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}
	return nil
}

func (d *Database) ListContacts(ctx context.Context) ([]models.Contact, error) {
	query := `SELECT name, phone, tags, created_at FROM contacts ORDER BY created_at, phone`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		var tags string
		if err := rows.Scan(&c.Name, &c.Phone, &tags, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// Template operations

func (d *Database) SaveTemplate(ctx context.Context, t *models.Template) error {
	query := `
		INSERT INTO templates (name, provider_template_id, status, account) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			provider_template_id = excluded.provider_template_id,
			status = excluded.status,
			account = excluded.account
	`
	if _, err := d.db.ExecContext(ctx, query, t.Name, t.ProviderTemplateID, t.Status, t.Account); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// UpdateTemplateStatusByProviderID applies a message_template_status_update
// callback. Unknown template ids update nothing.
func (d *Database) UpdateTemplateStatusByProviderID(ctx context.Context, providerID int64, status string) error {
	query := `UPDATE templates SET status = ? WHERE provider_template_id = ?`
	if _, err := d.db.ExecContext(ctx, query, status, providerID); err != nil {
		return fmt.Errorf("failed to update template status: %w", err)
	}
	return nil
}

// Webhook log operations

func (d *Database) SaveWebhookLog(ctx context.Context, log *models.WebhookLog) (int64, error) {
	res, err := d.db.ExecContext(ctx, insertWebhookLogQuery,
		log.Timestamp, log.Payload, log.Headers, log.Error)
	if err != nil {
		return 0, fmt.Errorf("failed to save webhook log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get webhook log id: %w", err)
	}
	return id, nil
}

func (d *Database) GetWebhookLog(ctx context.Context, id int64) (*models.WebhookLog, error) {
	log := &models.WebhookLog{}
	err := d.db.QueryRowContext(ctx, selectWebhookLogQuery, id).Scan(
		&log.ID, &log.Timestamp, &log.Payload, &log.Headers, &log.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook log: %w", err)
	}
	return log, nil
}
