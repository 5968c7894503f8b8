package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cchat/internal/apperr"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, size int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(strings.Repeat("x", size)), 0o600))
	return p
}

func TestParseMaxSize(t *testing.T) {
	n, err := ParseMaxSize("")
	require.NoError(t, err)
	assert.Equal(t, int64(10*1000*1000), n)

	n, err = ParseMaxSize("2 MiB")
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024), n)

	_, err = ParseMaxSize("lots")
	assert.Error(t, err)
}

func TestCloudinaryUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/demo/image/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "preset", r.FormValue("upload_preset"))
		assert.Equal(t, "demo", r.FormValue("cloud_name"))
		_, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "cat.png", hdr.Filename)
		_, _ = io.WriteString(w, `{"secure_url":"https://res.cloudinary.test/cat.png"}`)
	}))
	defer srv.Close()

	c := &Cloudinary{CloudName: "demo", Preset: "preset", Endpoint: srv.URL}
	url, err := c.Upload(context.Background(), writeTemp(t, "cat.png", 10))
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.test/cat.png", url)
}

func TestCloudinaryErrorIsUploadFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"Upload preset not found"}}`)
	}))
	defer srv.Close()

	c := &Cloudinary{CloudName: "demo", Preset: "nope", Endpoint: srv.URL}
	_, err := c.Upload(context.Background(), writeTemp(t, "cat.png", 10))
	assert.True(t, errors.Is(err, apperr.UploadFailed))
	assert.Contains(t, err.Error(), "Upload preset not found")
}

func TestMissingFileAndSizeLimit(t *testing.T) {
	c := &Cloudinary{CloudName: "demo", MaxSize: 5}
	_, err := c.Upload(context.Background(), "/does/not/exist.png")
	assert.True(t, errors.Is(err, apperr.UploadFailed))

	_, err = c.Upload(context.Background(), writeTemp(t, "big.png", 50))
	assert.True(t, errors.Is(err, apperr.UploadFailed))
	assert.Contains(t, err.Error(), "limit is 5 B")
}

type mockS3 struct {
	s3iface.S3API
	input *s3.PutObjectInput
	err   error
}

func (m *mockS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	m.input = in
	return &s3.PutObjectOutput{}, m.err
}

func TestS3Upload(t *testing.T) {
	mock := &mockS3{}
	u := &S3{Client: mock, Bucket: "chat-media", Prefix: "attachments", Region: "ap-southeast-1"}

	url, err := u.Upload(context.Background(), writeTemp(t, "Photo.JPG", 10))
	require.NoError(t, err)
	require.NotNil(t, mock.input)
	assert.Equal(t, "chat-media", aws.StringValue(mock.input.Bucket))
	assert.True(t, strings.HasPrefix(aws.StringValue(mock.input.Key), "attachments/"))
	assert.True(t, strings.HasSuffix(aws.StringValue(mock.input.Key), ".jpg"))
	assert.Equal(t, "image/jpeg", aws.StringValue(mock.input.ContentType))
	assert.Equal(t, int64(10), aws.Int64Value(mock.input.ContentLength))
	assert.True(t, strings.HasPrefix(url, "https://chat-media.s3.ap-southeast-1.amazonaws.com/attachments/"))
}

func TestS3FailureIsUploadFailed(t *testing.T) {
	u := &S3{Client: &mockS3{err: errors.New("AccessDenied")}, Bucket: "b", Region: "r"}
	_, err := u.Upload(context.Background(), writeTemp(t, "a.png", 1))
	assert.True(t, errors.Is(err, apperr.UploadFailed))
}
