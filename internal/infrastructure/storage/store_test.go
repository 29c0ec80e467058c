package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jhoicas/emissor-fiscal/internal/domain"
	"github.com/jhoicas/emissor-fiscal/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "xml/emissor/2024/01/chave.xml", []byte("<nfeProc/>"), "application/xml"))
	got, err := s.Get(ctx, "xml/emissor/2024/01/chave.xml")
	require.NoError(t, err)
	assert.Equal(t, "<nfeProc/>", string(got))

	require.NoError(t, s.Put(ctx, "/xml/emissor/2024/01/chave.xml", []byte("<v2/>"), ""))
	got, err = s.Get(ctx, "xml/emissor/2024/01/chave.xml")
	require.NoError(t, err)
	assert.Equal(t, "<v2/>", string(got))

	_, err = s.Get(ctx, "certificates/nada.pfx")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFSStore_RejectsTraversal(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	for _, p := range []string{"", "../fora", "a/../../b", "a//b"} {
		err := s.Put(context.Background(), p, []byte("x"), "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput, p)
	}
}

type fakeObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Store_PutGet(t *testing.T) {
	ctx := context.Background()
	fake := &fakeObjects{objects: map[string][]byte{}, types: map[string]string{}}
	s := &S3Store{api: fake, bucket: "fiscal"}

	require.NoError(t, s.Put(ctx, "certificates/emissor/1_a1.pfx", []byte{0x30, 0x82}, "application/x-pkcs12"))
	assert.Contains(t, fake.objects, "fiscal/certificates/emissor/1_a1.pfx")
	assert.Equal(t, "application/x-pkcs12", fake.types["certificates/emissor/1_a1.pfx"])

	got, err := s.Get(ctx, "certificates/emissor/1_a1.pfx")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x30, 0x82}, got)

	_, err = s.Get(ctx, "certificates/emissor/outro.pfx")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), config.StorageConfig{Driver: "s3"})
	assert.Error(t, err)
}

func TestNewS3Store_CustomEndpoint(t *testing.T) {
	s, err := NewS3Store(context.Background(), config.StorageConfig{
		Driver: "s3", Bucket: "fiscal", Region: "us-east-1",
		Endpoint: "https://projeto.supabase.co/storage/v1/s3", AccessKey: "id", SecretKey: "segredo",
	})
	require.NoError(t, err)
	client, ok := s.api.(*s3.Client)
	require.True(t, ok)
	assert.True(t, client.Options().UsePathStyle)
	assert.Equal(t, "https://projeto.supabase.co/storage/v1/s3", aws.ToString(client.Options().BaseEndpoint))
}
