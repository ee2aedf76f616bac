package bapp

import (
	"context"
	"fmt"
	"io"

	"github.com/advdv/bpipe"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
)

// S3API is the part of the S3 client that [S3Object] uses.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Object serves byte ranges of an object in S3, see [bpipe.Range]. Only the requested range is
// downloaded.
type S3Object struct {
	client S3API
	bucket string
	key    string

	size *int64
}

// NewS3Object creates a range source for the object.
func NewS3Object(client S3API, bucket, key string) *S3Object {
	return &S3Object{client: client, bucket: bucket, key: key}
}

// Size returns the object's size, the object is only inspected once.
func (o *S3Object) Size(ctx context.Context) (int64, error) {
	if o.size != nil {
		return *o.size, nil
	}

	out, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		return 0, errors.Wrapf(err, "head object s3://%s/%s", o.bucket, o.key)
	}

	size := aws.ToInt64(out.ContentLength)
	o.size = &size

	return size, nil
}

// ReadRange downloads length bytes from start.
func (o *S3Object) ReadRange(ctx context.Context, start, length int64) (io.ReadCloser, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, start+length-1)),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get object s3://%s/%s", o.bucket, o.key)
	}

	return out.Body, nil
}

var _ bpipe.RangeSource = &S3Object{}
