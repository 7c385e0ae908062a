package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/botfarm/internal/domain"
	"github.com/prn-tf/botfarm/internal/lock"
)

type fakeUploader struct {
	bucket, key string
	body        []byte
	err         error
}

func (f *fakeUploader) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

type staticLister struct {
	users []*domain.User
	err   error
}

func (s staticLister) ListUsers(context.Context) ([]*domain.User, error) {
	return s.users, s.err
}

func TestExporter_Export(t *testing.T) {
	free := domain.NewUser(uuid.Nil, "a@b.com", "hunter2", uuid.New(), domain.EnvProd, domain.DomainRegular)
	taken := domain.NewUser(uuid.Nil, "c@d.com", "swordfish", uuid.New(), domain.EnvStage, domain.DomainCanary)
	taken.Locktime = 1700000000

	up := &fakeUploader{}
	e := NewExporter(staticLister{users: []*domain.User{free, taken}}, up, "farm-backups", "exports/users", zerolog.Nop())
	e.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }

	res, err := e.Export(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "farm-backups", up.bucket)
	assert.Equal(t, "exports/users/users-20250304T050607Z.json", up.key)
	assert.Equal(t, up.key, res.Key)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 1, res.Locked)
	assert.Equal(t, len(up.body), res.Size)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(up.body, &snap))
	require.Len(t, snap.Users, 2)
	for _, u := range snap.Users {
		assert.Equal(t, RedactedPassword, u.Password)
	}
	assert.Equal(t, "hunter2", free.Password, "source users must not be mutated")
	assert.NotContains(t, string(up.body), "swordfish")
}

func TestExporter_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewExporter(staticLister{}, &fakeUploader{}, "", "", zerolog.Nop()).Export(ctx)
	require.ErrorIs(t, err, ErrNoBucket)

	listErr := errors.New("db down")
	_, err = NewExporter(staticLister{err: listErr}, &fakeUploader{}, "b", "", zerolog.Nop()).Export(ctx)
	require.ErrorIs(t, err, listErr)

	upErr := errors.New("access denied")
	_, err = NewExporter(staticLister{}, &fakeUploader{err: upErr}, "b", "", zerolog.Nop()).Export(ctx)
	require.ErrorIs(t, err, upErr)
}

func TestExporter_WithLock(t *testing.T) {
	ctx := context.Background()
	locker := lock.NewMemoryLocker()

	ok, err := locker.Acquire(ctx, lock.Keys.Export(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	exporter := NewExporter(staticLister{}, &fakeUploader{}, "b", "p", zerolog.Nop()).WithLock(locker, time.Minute)

	_, err = exporter.Export(ctx)
	assert.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, locker.Release(ctx, lock.Keys.Export()))

	_, err = exporter.Export(ctx)
	require.NoError(t, err)

	// Released after a successful run.
	ok, err = locker.Acquire(ctx, lock.Keys.Export(), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
