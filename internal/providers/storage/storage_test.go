package storage

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3StorePutsUnderPrefix(t *testing.T) {
	client := &fakeS3{}
	store := NewS3Store(client, "donara-receipts", "ap-south-1", "/receipts/")

	url, err := store.Put(context.Background(), "123.pdf", "application/pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, "receipts/123.pdf", aws.ToString(client.input.Key))
	assert.Equal(t, "donara-receipts", aws.ToString(client.input.Bucket))
	assert.Equal(t, "application/pdf", aws.ToString(client.input.ContentType))
	assert.Equal(t, []byte("%PDF-1.4"), client.body)
	assert.Equal(t, "https://donara-receipts.s3.ap-south-1.amazonaws.com/receipts/123.pdf", url)
}
