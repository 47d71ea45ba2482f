package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/audit"
	"github.com/ekaya-inc/ekaya-datahub/pkg/crypto"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
	"github.com/ekaya-inc/ekaya-datahub/pkg/repositories"
)

// CredentialSummary is the listing view of a credential. Values are never returned.
type CredentialSummary struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// UpdateCredentialRequest holds optional changes; nil fields are left as they are.
type UpdateCredentialRequest struct {
	Key   *string
	Value *string
}

// CredentialService stores third-party API secrets encrypted in project metadata.
type CredentialService interface {
	Add(ctx context.Context, auth models.AuthContext, projectID, key, value string) (*CredentialSummary, error)
	Update(ctx context.Context, auth models.AuthContext, projectID, credentialID string, req UpdateCredentialRequest) (*CredentialSummary, error)
	// Delete returns ErrConflict while an export still references the credential.
	Delete(ctx context.Context, auth models.AuthContext, projectID, credentialID string) error
	List(ctx context.Context, auth models.AuthContext, projectID string) ([]CredentialSummary, error)
	// ResolveSecret decrypts a credential for immediate use. Plaintext is never cached.
	ResolveSecret(ctx context.Context, projectID, credentialID string) (string, error)
}

type credentialService struct {
	guard    projectGuard
	metadata repositories.ProjectMetadataRepository
	cipher   *crypto.CredentialCipher
	auditor  *audit.SecurityAuditor
	logger   *zap.Logger
}

// NewCredentialService creates a new credential service. A nil cipher makes
// every operation that needs a key fail with ErrEncryptionKeyNotSet.
func NewCredentialService(
	projects repositories.ProjectRepository,
	metadata repositories.ProjectMetadataRepository,
	cipher *crypto.CredentialCipher,
	logger *zap.Logger,
) CredentialService {
	return &credentialService{
		guard:    projectGuard{projects: projects},
		metadata: metadata,
		cipher:   cipher,
		auditor:  audit.NewSecurityAuditor(logger),
		logger:   logger.Named("credentials"),
	}
}

func (s *credentialService) Add(ctx context.Context, auth models.AuthContext, projectID, key, value string) (*CredentialSummary, error) {
	if !s.cipher.Configured() {
		return nil, apperrors.ErrEncryptionKeyNotSet
	}
	key = strings.TrimSpace(key)
	if key == "" || value == "" {
		return nil, fmt.Errorf("%w: credential key and value are required", apperrors.ErrInvalidInput)
	}

	if _, _, err := s.guard.load(ctx, auth, projectID, levelEditor); err != nil {
		return nil, err
	}

	md, err := s.metadata.Ensure(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project metadata: %w", err)
	}
	for _, c := range md.Credentials {
		if c.Key == key {
			return nil, fmt.Errorf("%w: credential %q already exists", apperrors.ErrConflict, key)
		}
	}

	encrypted, err := s.cipher.Encrypt(value)
	if err != nil {
		return nil, err
	}

	cred := models.Credential{ID: uuid.NewString(), Key: key, EncryptedValue: encrypted}
	if err := s.metadata.AddCredential(ctx, projectID, cred); err != nil {
		return nil, fmt.Errorf("failed to add credential: %w", err)
	}

	s.logger.Info("Added credential",
		zap.String("project_id", projectID),
		zap.String("credential_id", cred.ID),
		zap.String("key", key))

	return &CredentialSummary{ID: cred.ID, Key: cred.Key}, nil
}

func (s *credentialService) Update(ctx context.Context, auth models.AuthContext, projectID, credentialID string, req UpdateCredentialRequest) (*CredentialSummary, error) {
	if !s.cipher.Configured() {
		return nil, apperrors.ErrEncryptionKeyNotSet
	}
	if _, _, err := s.guard.load(ctx, auth, projectID, levelEditor); err != nil {
		return nil, err
	}

	current, md, err := s.find(ctx, projectID, credentialID)
	if err != nil {
		return nil, err
	}

	updated := *current
	if req.Key != nil {
		key := strings.TrimSpace(*req.Key)
		if key == "" {
			return nil, fmt.Errorf("%w: credential key cannot be empty", apperrors.ErrInvalidInput)
		}
		for _, c := range md.Credentials {
			if c.Key == key && c.ID != credentialID {
				return nil, fmt.Errorf("%w: credential %q already exists", apperrors.ErrConflict, key)
			}
		}
		updated.Key = key
	}
	if req.Value != nil {
		if *req.Value == "" {
			return nil, fmt.Errorf("%w: credential value cannot be empty", apperrors.ErrInvalidInput)
		}
		encrypted, err := s.cipher.Encrypt(*req.Value)
		if err != nil {
			return nil, err
		}
		updated.EncryptedValue = encrypted
	}

	if err := s.metadata.UpdateCredential(ctx, projectID, updated); err != nil {
		return nil, fmt.Errorf("failed to update credential: %w", err)
	}
	return &CredentialSummary{ID: updated.ID, Key: updated.Key}, nil
}

func (s *credentialService) Delete(ctx context.Context, auth models.AuthContext, projectID, credentialID string) error {
	if _, _, err := s.guard.load(ctx, auth, projectID, levelEditor); err != nil {
		return err
	}

	_, md, err := s.find(ctx, projectID, credentialID)
	if err != nil {
		return err
	}
	for _, ref := range md.Exports {
		if ref.CredentialID == credentialID {
			return fmt.Errorf("%w: credential is used by export %q", apperrors.ErrConflict, ref.Name)
		}
	}

	if err := s.metadata.RemoveCredential(ctx, projectID, credentialID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

func (s *credentialService) List(ctx context.Context, auth models.AuthContext, projectID string) ([]CredentialSummary, error) {
	if _, _, err := s.guard.load(ctx, auth, projectID, levelMember); err != nil {
		return nil, err
	}

	md, err := s.metadata.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return []CredentialSummary{}, nil
		}
		return nil, fmt.Errorf("failed to load project metadata: %w", err)
	}

	out := make([]CredentialSummary, len(md.Credentials))
	for i, c := range md.Credentials {
		out[i] = CredentialSummary{ID: c.ID, Key: c.Key}
	}
	return out, nil
}

func (s *credentialService) ResolveSecret(ctx context.Context, projectID, credentialID string) (string, error) {
	if !s.cipher.Configured() {
		return "", apperrors.ErrEncryptionKeyNotSet
	}
	cred, _, err := s.find(ctx, projectID, credentialID)
	if err != nil {
		return "", err
	}
	secret, err := s.cipher.Decrypt(cred.EncryptedValue)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			s.auditor.LogCredentialDecryptFailure(ctx, projectID, credentialID)
		}
		return "", err
	}
	return secret, nil
}

func (s *credentialService) find(ctx context.Context, projectID, credentialID string) (*models.Credential, *models.ProjectMetadata, error) {
	md, err := s.metadata.Get(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	cred := md.Credential(credentialID)
	if cred == nil {
		return nil, nil, fmt.Errorf("credential %s: %w", credentialID, apperrors.ErrNotFound)
	}
	return cred, md, nil
}

// Ensure credentialService implements CredentialService at compile time.
var _ CredentialService = (*credentialService)(nil)
