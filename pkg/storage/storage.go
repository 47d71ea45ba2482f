// Package storage provides the object-storage adapter that holds project
// images and uploaded files under a per-project key prefix.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned by the disabled adapter for operations that
// need a real object store.
var ErrNotConfigured = errors.New("object storage not configured")

// ProjectImageName is the object name of a project's image under its prefix.
const ProjectImageName = "project-image"

// FileInfo describes one stored object.
type FileInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// PresignedURL is an upload URL plus the URL the object is served from
// once uploaded.
type PresignedURL struct {
	URL       string `json:"url"`
	PublicURL string `json:"public_url"`
}

// Adapter stores objects under "<projectId>/".
type Adapter interface {
	ListFiles(ctx context.Context, projectID string) ([]FileInfo, error)
	DeleteProjectDirectory(ctx context.Context, projectID string) error
	DeleteProjectImage(ctx context.Context, projectID string) error
	GetPresignedURL(ctx context.Context, contentType, projectID string) (*PresignedURL, error)
	GetPresignedProjectImageURL(ctx context.Context, projectID string) (*PresignedURL, error)
}

// Disabled is used when no object store is configured. Reads return nothing
// and deletions succeed, so project deletion still works.
type Disabled struct{}

func (Disabled) ListFiles(ctx context.Context, projectID string) ([]FileInfo, error) {
	return []FileInfo{}, nil
}

func (Disabled) DeleteProjectDirectory(ctx context.Context, projectID string) error { return nil }

func (Disabled) DeleteProjectImage(ctx context.Context, projectID string) error { return nil }

func (Disabled) GetPresignedURL(ctx context.Context, contentType, projectID string) (*PresignedURL, error) {
	return nil, ErrNotConfigured
}

func (Disabled) GetPresignedProjectImageURL(ctx context.Context, projectID string) (*PresignedURL, error) {
	return nil, ErrNotConfigured
}

var _ Adapter = Disabled{}
