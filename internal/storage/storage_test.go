package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/imgconvert/internal/converr"
)

func TestLocalIterFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "notes.txt", "c.pdf", "d.psd"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	res := NewLocal().IterFiles(context.Background(), dir)
	require.True(t, res.IsSuccessful(), res.Message())

	var names []string
	for _, it := range res.Value() {
		names = append(names, it.Name)
		assert.Equal(t, filepath.Join(dir, it.Name), it.Path)
	}
	assert.Equal(t, []string{"a.JPG", "b.png", "c.pdf", "d.psd"}, names)
	assert.Equal(t, "a", res.Value()[0].Stem)
}

func TestLocalIterSingleFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "photo.final.jpeg")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	res := NewLocal().IterFiles(context.Background(), p)
	require.True(t, res.IsSuccessful())
	assert.Equal(t, []FileItem{{Path: p, Name: "photo.final.jpeg", Stem: "photo.final"}}, res.Value())
}

func TestLocalMissingFolder(t *testing.T) {
	res := NewLocal().IterFiles(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, converr.KindIO, converr.Classify(res.Err()))
}

func TestLocalWriteCreatesParents(t *testing.T) {
	l := NewLocal()
	dest := l.BuildDestPath(filepath.Join(t.TempDir(), "out", "nested"), "a.png")

	require.True(t, l.WriteBytes(context.Background(), dest, []byte("data")).IsSuccessful())
	res := l.ReadBytes(context.Background(), dest)
	require.True(t, res.IsSuccessful())
	assert.Equal(t, []byte("data"), res.Value())

	assert.Equal(t, converr.KindIO, converr.Classify(l.ReadBytes(context.Background(), dest+".missing").Err()))
}

func TestParseS3Path(t *testing.T) {
	b, k, err := ParseS3Path("s3://bucket/in/photos/a.png")
	require.NoError(t, err)
	assert.Equal(t, "bucket", b)
	assert.Equal(t, "in/photos/a.png", k)

	b, k, err = ParseS3Path("s3://bucket")
	require.NoError(t, err)
	assert.Equal(t, "bucket", b)
	assert.Empty(t, k)

	_, _, err = ParseS3Path("s3:///key")
	assert.Error(t, err)
	_, _, err = ParseS3Path("/local/path")
	assert.Error(t, err)
}

// fakeS3 keeps objects in memory. Uploads below the multipart threshold use
// PutObject only.
type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	headErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		rest, ok := strings.CutPrefix(k, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func TestS3Storage(t *testing.T) {
	fake := newFakeS3()
	fake.objects["in/b.png"] = []byte("b")
	fake.objects["in/a.jpg"] = []byte("a")
	fake.objects["in/readme.txt"] = []byte("r")
	fake.objects["in/deeper/c.png"] = []byte("c")
	s := NewS3WithClient(fake, "bucket")
	ctx := context.Background()

	res := s.IterFiles(ctx, "s3://bucket/in")
	require.True(t, res.IsSuccessful(), res.Message())
	assert.Equal(t, []FileItem{
		{Path: "s3://bucket/in/a.jpg", Name: "a.jpg", Stem: "a"},
		{Path: "s3://bucket/in/b.png", Name: "b.png", Stem: "b"},
	}, res.Value())

	read := s.ReadBytes(ctx, "s3://bucket/in/b.png")
	require.True(t, read.IsSuccessful())
	assert.Equal(t, []byte("b"), read.Value())
	assert.Equal(t, converr.KindIO, converr.Classify(s.ReadBytes(ctx, "s3://bucket/in/zzz.png").Err()))

	dest := s.BuildDestPath("s3://bucket/out/", "a.pdf")
	assert.Equal(t, "s3://bucket/out/a.pdf", dest)
	require.True(t, s.WriteBytes(ctx, dest, []byte("%PDF-1.4\n")).IsSuccessful())
	assert.Equal(t, []byte("%PDF-1.4\n"), fake.objects["out/a.pdf"])
	assert.Equal(t, "application/pdf", fake.types["out/a.pdf"])

	assert.NoError(t, s.Ping(ctx))
	fake.headErr = errors.New("forbidden")
	assert.ErrorContains(t, s.Ping(ctx), "forbidden")
}

func TestRouted(t *testing.T) {
	dir := t.TempDir()
	r := NewRouted(NewLocal(), nil)
	ctx := context.Background()

	dest := r.BuildDestPath(dir, "x.png")
	assert.Equal(t, filepath.Join(dir, "x.png"), dest)
	require.True(t, r.WriteBytes(ctx, dest, []byte("x")).IsSuccessful())
	assert.True(t, r.ReadBytes(ctx, dest).IsSuccessful())

	assert.Equal(t, "s3://b/out/x.png", r.BuildDestPath("s3://b/out", "x.png"))
	res := r.IterFiles(ctx, "s3://b/in")
	assert.Equal(t, converr.KindCapabilityUnavailable, converr.Classify(res.Err()))

	fake := newFakeS3()
	r = NewRouted(NewLocal(), NewS3WithClient(fake, ""))
	require.True(t, r.WriteBytes(ctx, "s3://b/out/x.png", []byte("x")).IsSuccessful())
	assert.Contains(t, fake.objects, "out/x.png")
}
