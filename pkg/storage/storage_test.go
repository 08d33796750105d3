package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	puts    map[string]string
	deleted []string
	err     error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.puts[aws.ToString(in.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestR2UploadAndDelete(t *testing.T) {
	fake := &fakeS3{puts: map[string]string{}}
	r := newR2(fake, "otto", "https://cdn.otto.ec/")

	url, err := r.Upload(context.Background(), "bulletins/2025-01-31/a.mp3", strings.NewReader("ID3"), 3, "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.otto.ec/bulletins/2025-01-31/a.mp3", url)
	assert.Equal(t, "ID3", fake.puts["bulletins/2025-01-31/a.mp3"])

	require.NoError(t, r.Delete(context.Background(), url))
	assert.Equal(t, []string{"bulletins/2025-01-31/a.mp3"}, fake.deleted)

	assert.Error(t, r.Delete(context.Background(), "https://elsewhere.com/x.png"))
}

func TestR2UploadError(t *testing.T) {
	r := newR2(&fakeS3{err: errors.New("denied")}, "otto", "https://cdn.otto.ec")
	_, err := r.Upload(context.Background(), "k", strings.NewReader(""), 0, "text/plain")
	assert.ErrorContains(t, err, "denied")
}

func TestKey(t *testing.T) {
	key := Key("MP3", "bulletins", "2025-01-31", "../audio")
	assert.True(t, strings.HasPrefix(key, "bulletins/2025-01-31/audio/"), key)
	assert.True(t, strings.HasSuffix(key, ".mp3"), key)
	assert.NotContains(t, key, "..")
}

func TestUnconfigured(t *testing.T) {
	_, err := Default.Upload(context.Background(), "k", nil, 0, "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
