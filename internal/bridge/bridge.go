// Package bridge keeps the credentials of the user's external services
// (databases, SaaS APIs) encrypted at rest so other features can connect on
// their behalf.
//
// Every secret is sealed with AES-256-GCM under a key derived with PBKDF2
// from the master key and a per-secret salt. Secrets never appear in logs.
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/store"
	"go.uber.org/zap"
)

// ErrNoSecret is returned when a service has no stored credentials.
var ErrNoSecret = errors.New("no credentials stored for service")

// Service describes stored credentials without their values.
type Service struct {
	Name      string   `json:"service"`
	Fields    []string `json:"fields"`
	UpdatedAt string   `json:"updated_at"`
}

// Bridge stores and retrieves encrypted credentials.
type Bridge struct {
	store  store.DocumentStore
	master []byte
	logger *zap.Logger
}

// New creates a bridge sealing secrets under master.
func New(st store.DocumentStore, master []byte, logger *zap.Logger) (*Bridge, error) {
	if len(master) == 0 {
		return nil, fmt.Errorf("master key is empty")
	}
	return &Bridge{store: st, master: master, logger: logger.Named("bridge")}, nil
}

func secretID(user, service string) string {
	return user + "/" + service
}

// Set encrypts and stores creds for user's service, replacing any previous
// value.
func (b *Bridge) Set(ctx context.Context, user, service string, creds map[string]string) error {
	service = strings.ToLower(strings.TrimSpace(service))
	if user == "" || service == "" {
		return fmt.Errorf("user and service are required")
	}
	if len(creds) == 0 {
		return fmt.Errorf("no credentials given")
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	salt, err := randomBytes(saltSize)
	if err != nil {
		return err
	}
	key := DeriveKey(b.master, salt)
	defer wipe(key)

	sealed, err := Encrypt(plaintext, key)
	wipe(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	fields := make([]string, 0, len(creds))
	for k := range creds {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	err = b.store.Set(ctx, store.CollectionUserSecrets, secretID(user, service), store.Doc{
		"user_id":    user,
		"service":    service,
		"fields":     fields,
		"salt":       base64.StdEncoding.EncodeToString(salt),
		"ciphertext": sealed,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}, false)
	if err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	b.logger.Info("credentials stored", zap.String("user", user), zap.String("service", service))
	return nil
}

// Credentials decrypts the stored credentials of user's service.
func (b *Bridge) Credentials(ctx context.Context, user, service string) (map[string]string, error) {
	service = strings.ToLower(strings.TrimSpace(service))
	d, err := b.store.Get(ctx, store.CollectionUserSecrets, secretID(user, service))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", service, ErrNoSecret)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(d.Data.String("salt"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	key := DeriveKey(b.master, salt)
	defer wipe(key)

	plaintext, err := Decrypt(d.Data.String("ciphertext"), key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	defer wipe(plaintext)

	var creds map[string]string
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return creds, nil
}

// Services lists the services user has credentials for, sorted by name.
func (b *Bridge) Services(ctx context.Context, user string) ([]Service, error) {
	docs, err := b.store.Query(ctx, store.CollectionUserSecrets, store.Doc{"user_id": user}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	out := make([]Service, 0, len(docs))
	for _, d := range docs {
		s := Service{Name: d.Data.String("service"), UpdatedAt: d.Data.String("updated_at")}
		if fields, ok := d.Data["fields"].([]any); ok {
			for _, f := range fields {
				if name, ok := f.(string); ok {
					s.Fields = append(s.Fields, name)
				}
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
