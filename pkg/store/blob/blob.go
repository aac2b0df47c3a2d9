// Package blob implements the date-partitioned, encrypted raw-payload
// object store backed by S3. Keys are content-addressed to
// (user_id, processing_id); objects are immutable once written.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-logr/logr"

	clarityerrors "github.com/clarity-digital-twin/clarity-backend/internal/errors"
)

// DataType discriminates the two object families this store holds.
type DataType string

const (
	DataTypeRaw      DataType = "raw-health-data"
	DataTypeAnalysis DataType = "analysis-results"
)

// Lifecycle transition thresholds, in days.
const (
	RawInfrequentAccessDays  = 30
	RawColdArchiveDays       = 90
	AnalysisInfrequentDays   = 7
	AnalysisColdArchiveDays  = 30
	ExpireDays               = 7 * 365 // 7-year compliance retention ceiling
)

// Client is a thin, typed wrapper over an S3 API client scoped to one
// bucket, built with constructor injection (logr.Logger + config in, ready
// client out).
type Client struct {
	s3     S3API
	bucket string
	log    logr.Logger
}

// S3API is the subset of the S3 client this package calls, so tests can
// substitute a fake without spinning up a real bucket.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutBucketLifecycleConfiguration(ctx context.Context, in *s3.PutBucketLifecycleConfigurationInput, opts ...func(*s3.Options)) (*s3.PutBucketLifecycleConfigurationOutput, error)
}

// New resolves the default AWS config for region and wraps an S3 client for
// bucket.
func New(ctx context.Context, region, bucket string, log logr.Logger) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, clarityerrors.NewStorage("blob_store", "failed to load AWS config", err)
	}
	return &Client{s3: s3.NewFromConfig(cfg), bucket: bucket, log: log}, nil
}

// NewWithClient wraps a pre-built S3API (used by tests and by callers that
// already hold a configured client).
func NewWithClient(api S3API, bucket string, log logr.Logger) *Client {
	return &Client{s3: api, bucket: bucket, log: log}
}

// RawKey builds the raw-blob key: raw_data/YYYY/MM/DD/<user_id>/<processing_id>.json.
func RawKey(at time.Time, userID, processingID string) string {
	return fmt.Sprintf("raw_data/%s/%s/%s.json", datePrefix(at), userID, processingID)
}

// AnalysisKey builds the analysis-result mirror key.
func AnalysisKey(at time.Time, userID, processingID string) string {
	return fmt.Sprintf("analysis_results/%s/%s/%s_results.json", datePrefix(at), userID, processingID)
}

func datePrefix(at time.Time) string {
	u := at.UTC()
	return fmt.Sprintf("%04d/%02d/%02d", u.Year(), u.Month(), u.Day())
}

// PutRaw writes the raw upload JSON at its content-addressed key with
// server-side encryption and object-level metadata.
func (c *Client) PutRaw(ctx context.Context, at time.Time, userID, processingID, uploadSource string, metricsCount int, content []byte) (string, error) {
	key := RawKey(at, userID, processingID)
	if err := c.put(ctx, key, content, "application/json", DataTypeRaw, userID, processingID, uploadSource, metricsCount); err != nil {
		return "", err
	}
	return key, nil
}

// PutAnalysisResults mirrors a completed AnalysisResult to object storage.
func (c *Client) PutAnalysisResults(ctx context.Context, at time.Time, userID, processingID string, content []byte) (string, error) {
	key := AnalysisKey(at, userID, processingID)
	if err := c.put(ctx, key, content, "application/json", DataTypeAnalysis, userID, processingID, "", 0); err != nil {
		return "", err
	}
	return key, nil
}

func (c *Client) put(ctx context.Context, key string, content []byte, contentType string, dataType DataType, userID, processingID, uploadSource string, metricsCount int) error {
	meta := map[string]string{
		"user-id":       userID,
		"processing-id": processingID,
		"data-type":     string(dataType),
		"compliance":    "hipaa",
	}
	if uploadSource != "" {
		meta["upload-source"] = uploadSource
	}
	if metricsCount > 0 {
		meta["metrics-count"] = strconv.Itoa(metricsCount)
	}

	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(c.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(content),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
		Metadata:             meta,
		StorageClass:         s3types.StorageClassStandard,
	})
	if err != nil {
		return clarityerrors.NewStorage("blob_store", "PutObject failed for "+key, err)
	}
	return nil
}

// Get reads an object's full content by key.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, clarityerrors.NewStorage("blob_store", "GetObject failed for "+key, err)
	}
	defer out.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, clarityerrors.NewStorage("blob_store", "failed reading body for "+key, err)
	}
	return buf.Bytes(), nil
}

// Delete removes one object by key.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(key)})
	if err != nil {
		return clarityerrors.NewStorage("blob_store", "DeleteObject failed for "+key, err)
	}
	return nil
}

// DeleteUserData enumerates every raw_data/ and analysis_results/ object
// whose path contains userID as a path segment and deletes it, returning
// the count deleted. The caller folds this count into the combined audit
// event's metadata.deleted_count. Date-partitioned keys put the user
// segment after the date, so enumeration scans both root prefixes rather
// than a single per-user prefix — cross-user enumeration stays impossible
// because the filter only matches "/userID/" as an exact path segment.
func (c *Client) DeleteUserData(ctx context.Context, userID string) (int, error) {
	deleted := 0
	for _, root := range []string{"raw_data/", "analysis_results/"} {
		keys, err := c.listMatchingUser(ctx, root, userID)
		if err != nil {
			return deleted, err
		}
		for _, key := range keys {
			if err := c.Delete(ctx, key); err != nil {
				c.log.Error(err, "failed deleting user object during erasure sweep, will retry on next sweep", "key", key, "user_id", userID)
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}

func (c *Client) listMatchingUser(ctx context.Context, prefix, userID string) ([]string, error) {
	var keys []string
	var token *string
	needle := "/" + userID + "/"
	for {
		out, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, clarityerrors.NewStorage("blob_store", "ListObjectsV2 failed for prefix "+prefix, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if strings.Contains(key, needle) {
				keys = append(keys, key)
			}
		}
		if out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}

// ApplyLifecyclePolicy installs the storage-class transition and expiry
// rules on the bucket.
func (c *Client) ApplyLifecyclePolicy(ctx context.Context) error {
	_, err := c.s3.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket: aws.String(c.bucket),
		LifecycleConfiguration: &s3types.BucketLifecycleConfiguration{
			Rules: []s3types.LifecycleRule{
				lifecycleRule("raw-data-lifecycle", "raw_data/", RawInfrequentAccessDays, RawColdArchiveDays),
				lifecycleRule("analysis-results-lifecycle", "analysis_results/", AnalysisInfrequentDays, AnalysisColdArchiveDays),
			},
		},
	})
	if err != nil {
		return clarityerrors.NewStorage("blob_store", "PutBucketLifecycleConfiguration failed", err)
	}
	return nil
}

func lifecycleRule(id, prefix string, iaDays, archiveDays int32) s3types.LifecycleRule {
	return s3types.LifecycleRule{
		ID:     aws.String(id),
		Status: s3types.ExpirationStatusEnabled,
		Filter: &s3types.LifecycleRuleFilterMemberPrefix{Value: prefix},
		Transitions: []s3types.Transition{
			{Days: aws.Int32(iaDays), StorageClass: s3types.TransitionStorageClassStandardIa},
			{Days: aws.Int32(archiveDays), StorageClass: s3types.TransitionStorageClassGlacier},
		},
		Expiration: &s3types.LifecycleExpiration{Days: aws.Int32(ExpireDays)},
	}
}
