package blob_test

import (
	"bytes"
	"context"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clarity-digital-twin/clarity-backend/pkg/store/blob"
)

// fakeS3 is an in-memory stand-in for blob.S3API, used so this package's
// tests exercise real request/response shapes without a live bucket.
type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	buf, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = buf
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var contents []types.Object
	for _, k := range keys {
		contents = append(contents, types.Object{Key: aws.String(k)})
	}
	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

func (f *fakeS3) PutBucketLifecycleConfiguration(_ context.Context, _ *s3.PutBucketLifecycleConfigurationInput, _ ...func(*s3.Options)) (*s3.PutBucketLifecycleConfigurationOutput, error) {
	return &s3.PutBucketLifecycleConfigurationOutput{}, nil
}

var _ = Describe("Client raw blob lifecycle", func() {
	var (
		fake *fakeS3
		c    *blob.Client
		ctx  context.Context
		at   time.Time
	)

	BeforeEach(func() {
		fake = newFakeS3()
		c = blob.NewWithClient(fake, "clarity-healthkit-raw", discardLogger())
		ctx = context.Background()
		at = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	})

	It("writes and reads back raw content at the content-addressed key", func() {
		key, err := c.PutRaw(ctx, at, "user-1", "proc-1", "ios-app", 3, []byte(`{"hello":"world"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("raw_data/2026/03/15/user-1/proc-1.json"))

		got, err := c.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(MatchJSON(`{"hello":"world"}`))
	})

	It("scopes DeleteUserData to exactly one user's objects", func() {
		_, _ = c.PutRaw(ctx, at, "user-1", "p1", "src", 1, []byte(`{}`))
		_, _ = c.PutRaw(ctx, at, "user-1", "p2", "src", 1, []byte(`{}`))
		_, _ = c.PutAnalysisResults(ctx, at, "user-1", "p1", []byte(`{}`))
		_, _ = c.PutRaw(ctx, at, "user-2", "p3", "src", 1, []byte(`{}`))

		deleted, err := c.DeleteUserData(ctx, "user-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(deleted).To(Equal(3))

		_, err = c.Get(ctx, "raw_data/2026/03/15/user-2/p3.json")
		Expect(err).NotTo(HaveOccurred())
	})
})
