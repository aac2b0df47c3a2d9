package upload_test

import (
	"bytes"
	"context"
	"io"
	"sort"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
	"github.com/clarity-digital-twin/clarity-backend/pkg/queue"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/audit"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/blob"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/structured"
	"github.com/clarity-digital-twin/clarity-backend/pkg/upload"
)

// fakeS3 is a minimal in-memory stand-in for blob.S3API, scoped to what
// Accept/EraseUser exercise.
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

func newTestService() (*upload.Service, *fakeS3, sqlmock.Sqlmock, *queue.Queue, *miniredis.Miniredis) {
	fake := newFakeS3()
	blobClient := blob.NewWithClient(fake, "clarity-healthkit-raw", discardLogger())

	raw, mockDB, err := sqlmock.New()
	Expect(err).NotTo(HaveOccurred())
	db := sqlx.NewDb(raw, "sqlmock")
	cache := structured.NewCache(nil, time.Minute, false, discardLogger())
	auditWriter := audit.New(db, discardLogger())
	store := structured.New(db, cache, auditWriter, discardLogger())

	mr, err := miniredis.Run()
	Expect(err).NotTo(HaveOccurred())
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.New(redisClient, discardLogger())

	svc := upload.New(blobClient, store, q, auditWriter, discardLogger())
	return svc, fake, mockDB, q, mr
}

func validMetric(id string) model.HealthMetric {
	return model.HealthMetric{
		MetricID:  id,
		UserID:    "user-1",
		Type:      model.MetricHeartRate,
		CreatedAt: time.Now().UTC(),
	}
}

var _ = Describe("Service.Accept", func() {
	It("runs the full write sequence and publishes a job message", func() {
		svc, _, mockDB, q, mr := newTestService()
		defer mr.Close()

		mockDB.ExpectExec("INSERT INTO processing_jobs").WillReturnResult(sqlmock.NewResult(1, 1))
		mockDB.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
		mockDB.ExpectBegin()
		mockDB.ExpectExec("INSERT INTO health_data").WillReturnResult(sqlmock.NewResult(1, 1))
		mockDB.ExpectCommit()
		mockDB.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

		u := model.Upload{
			UserID:          "user-1",
			UploadSource:    "ios-app",
			ClientTimestamp: time.Now().UTC(),
			Metrics:         []model.HealthMetric{validMetric("m1")},
		}

		processingID, err := svc.Accept(context.Background(), u)
		Expect(err).NotTo(HaveOccurred())
		Expect(processingID).NotTo(BeEmpty())

		depth, err := q.Depth(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(depth).To(Equal(int64(1)))
	})

	It("rejects an upload with no metrics before touching any store", func() {
		svc, fake, _, _, mr := newTestService()
		defer mr.Close()

		u := model.Upload{UserID: "user-1", UploadSource: "ios-app", ClientTimestamp: time.Now().UTC()}
		_, err := svc.Accept(context.Background(), u)
		Expect(err).To(HaveOccurred())
		Expect(fake.objects).To(BeEmpty())
	})

	It("rejects a metric whose payload variant does not match its metric_type", func() {
		svc, _, _, _, mr := newTestService()
		defer mr.Close()

		m := validMetric("m1")
		m.Payload = model.SleepPayload{}
		u := model.Upload{
			UserID:          "user-1",
			UploadSource:    "ios-app",
			ClientTimestamp: time.Now().UTC(),
			Metrics:         []model.HealthMetric{m},
		}

		_, err := svc.Accept(context.Background(), u)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Service.EraseUser", func() {
	It("writes exactly one combined DELETE audit event summing both stores' counts", func() {
		svc, fake, mockDB, _, mr := newTestService()
		defer mr.Close()

		fake.objects["raw_data/2026/03/15/user-1/p1.json"] = []byte(`{}`)
		fake.objects["raw_data/2026/03/15/user-1/p2.json"] = []byte(`{}`)

		mockDB.ExpectExec("DELETE FROM health_data").WillReturnResult(sqlmock.NewResult(0, 3))
		mockDB.ExpectExec("DELETE FROM processing_jobs").WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectExec("DELETE FROM analysis_results").WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

		total, err := svc.EraseUser(context.Background(), "user-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(int64(7)))
		Expect(fake.objects).To(BeEmpty())
		Expect(mockDB.ExpectationsWereMet()).To(Succeed())
	})
})
