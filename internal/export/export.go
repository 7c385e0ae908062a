// Package export writes point-in-time snapshots of the user inventory to
// S3-compatible object storage.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/prn-tf/botfarm/internal/domain"
	"github.com/prn-tf/botfarm/internal/lock"
)

// RedactedPassword replaces every password in a snapshot.
const RedactedPassword = "[REDACTED]"

var (
	// ErrNoBucket indicates the export bucket is not configured.
	ErrNoBucket = errors.New("export bucket is not configured")

	// ErrInProgress indicates another export holds the export lock.
	ErrInProgress = errors.New("export already in progress")
)

// Uploader is the subset of the S3 client used by the exporter.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// UserLister returns the users to snapshot.
type UserLister interface {
	ListUsers(ctx context.Context) ([]*domain.User, error)
}

// Snapshot is the exported document.
type Snapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Count       int            `json:"count"`
	Locked      int            `json:"locked"`
	Users       []*domain.User `json:"users"`
}

// Result describes a written snapshot.
type Result struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Count  int    `json:"count"`
	Locked int    `json:"locked"`
	Size   int    `json:"size"`
}

// Exporter uploads user snapshots.
type Exporter struct {
	users    UserLister
	uploader Uploader
	bucket   string
	prefix   string
	now      func() time.Time
	logger   zerolog.Logger

	locker  lock.Locker
	lockTTL time.Duration
}

// NewExporter creates an exporter writing to bucket under prefix.
func NewExporter(users UserLister, uploader Uploader, bucket, prefix string, logger zerolog.Logger) *Exporter {
	return &Exporter{
		users:    users,
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		now:      time.Now,
		logger:   logger.With().Str("component", "export").Logger(),
	}
}

// WithLock makes Export single-flight across every exporter sharing the locker.
// ttl bounds how long a crashed export can block the next one.
func (e *Exporter) WithLock(l lock.Locker, ttl time.Duration) *Exporter {
	e.locker = l
	e.lockTTL = ttl
	return e
}

// Export lists every user, redacts passwords and uploads the snapshot as JSON.
func (e *Exporter) Export(ctx context.Context) (*Result, error) {
	if e.bucket == "" {
		return nil, ErrNoBucket
	}

	if e.locker != nil {
		key := lock.Keys.Export()
		ok, err := e.locker.Acquire(ctx, key, e.lockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInProgress
		}
		defer func() {
			if err := e.locker.Release(context.WithoutCancel(ctx), key); err != nil {
				e.logger.Warn().Err(err).Msg("failed to release export lock")
			}
		}()
	}

	users, err := e.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	now := e.now().UTC()
	snap := Snapshot{
		GeneratedAt: now,
		Count:       len(users),
		Users:       make([]*domain.User, 0, len(users)),
	}
	for _, u := range users {
		c := u.Clone()
		c.Password = RedactedPassword
		if c.IsLocked() {
			snap.Locked++
		}
		snap.Users = append(snap.Users, c)
	}

	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := path.Join(e.prefix, "users-"+now.Format("20060102T150405Z")+".json")

	_, err = e.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload snapshot: %w", err)
	}

	e.logger.Info().
		Str("bucket", e.bucket).
		Str("key", key).
		Int("users", snap.Count).
		Int("locked", snap.Locked).
		Msg("user snapshot exported")

	return &Result{
		Bucket: e.bucket,
		Key:    key,
		Count:  snap.Count,
		Locked: snap.Locked,
		Size:   len(body),
	}, nil
}
