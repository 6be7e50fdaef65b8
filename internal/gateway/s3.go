package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/openmined/s3ops/internal/utils"
)

const (
	dialTimeout           = 10 * time.Second
	responseHeaderTimeout = 30 * time.Second
	defaultRegion         = "us-east-1"
)

// S3Gateway talks to AWS S3 or any endpoint speaking the same protocol.
type S3Gateway struct {
	client *s3.Client
}

var _ Gateway = (*S3Gateway)(nil)

func NewS3GatewayWithClient(client *s3.Client) *S3Gateway {
	return &S3Gateway{client: client}
}

func NewS3Gateway(cfg *Config) (*S3Gateway, error) {
	// No overall client timeout: large transfers are bounded by the header timeout only.
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   dialTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithHTTPClient(httpClient),
		// retries belong to the operation engine
		config.WithRetryMaxAttempts(1),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("gateway: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
	})

	return NewS3GatewayWithClient(client), nil
}

func (g *S3Gateway) ListBuckets(ctx context.Context) ([]Bucket, error) {
	resp, err := g.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, wrapS3Error("ListBuckets", "", "", err)
	}

	buckets := make([]Bucket, 0, len(resp.Buckets))
	for _, b := range resp.Buckets {
		buckets = append(buckets, Bucket{
			Name:         aws.ToString(b.Name),
			CreationDate: aws.ToTime(b.CreationDate),
		})
	}
	return buckets, nil
}

func (g *S3Gateway) ListObjects(ctx context.Context, input *ListObjectsInput) (*ObjectPage, error) {
	req := &s3.ListObjectsV2Input{
		Bucket: aws.String(input.Bucket),
	}
	if input.Prefix != "" {
		req.Prefix = aws.String(input.Prefix)
	}
	if input.Delimiter != "" {
		req.Delimiter = aws.String(input.Delimiter)
	}
	if input.ContinuationToken != "" {
		req.ContinuationToken = aws.String(input.ContinuationToken)
	}
	if input.MaxKeys > 0 {
		req.MaxKeys = aws.Int32(input.MaxKeys)
	}

	resp, err := g.client.ListObjectsV2(ctx, req)
	if err != nil {
		return nil, wrapS3Error("ListObjects", input.Bucket, input.Prefix, err)
	}

	page := &ObjectPage{
		Objects:        make([]ObjectEntry, 0, len(resp.Contents)),
		CommonPrefixes: make([]string, 0, len(resp.CommonPrefixes)),
	}
	for _, obj := range resp.Contents {
		page.Objects = append(page.Objects, ObjectEntry{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         cleanETag(aws.ToString(obj.ETag)),
			LastModified: aws.ToTime(obj.LastModified),
			StorageClass: string(obj.StorageClass),
		})
	}
	for _, cp := range resp.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	if aws.ToBool(resp.IsTruncated) {
		page.NextToken = aws.ToString(resp.NextContinuationToken)
	}
	return page, nil
}

func (g *S3Gateway) GetObject(ctx context.Context, bucket, key string, sink io.Writer, onBytes ProgressFunc) (int64, error) {
	resp, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, wrapS3Error("GetObject", bucket, key, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(newProgressWriter(sink, onBytes), resp.Body)
	if err != nil {
		return n, wrapS3Error("GetObject", bucket, key, err)
	}
	return n, nil
}

func (g *S3Gateway) PutObject(ctx context.Context, bucket, key string, source io.Reader, size int64, onBytes ProgressFunc) error {
	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          newProgressReader(source, onBytes),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(utils.DetectContentType(key)),
	})
	return wrapS3Error("PutObject", bucket, key, err)
}

func (g *S3Gateway) DeleteObjects(ctx context.Context, bucket string, keys []string) ([]DeleteResult, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if len(keys) > MaxDeleteBatch {
		return nil, NewError(KindPrecondition, "DeleteObjects", bucket, "",
			fmt.Errorf("batch of %d keys exceeds %d", len(keys), MaxDeleteBatch))
	}

	objects := make([]types.ObjectIdentifier, len(keys))
	for i, key := range keys {
		objects[i] = types.ObjectIdentifier{Key: aws.String(key)}
	}

	resp, err := g.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return nil, wrapS3Error("DeleteObjects", bucket, "", err)
	}

	// quiet mode only reports failures
	failed := make(map[string]error, len(resp.Errors))
	for _, e := range resp.Errors {
		if e.Key == nil {
			continue
		}
		code := aws.ToString(e.Code)
		failed[*e.Key] = NewError(kindFromCode(code, 0), "DeleteObjects", bucket, *e.Key,
			fmt.Errorf("%s: %s", code, aws.ToString(e.Message)))
	}

	results := make([]DeleteResult, len(keys))
	for i, key := range keys {
		results[i] = DeleteResult{Key: key, Err: failed[key]}
	}
	return results, nil
}

func (g *S3Gateway) HeadObject(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	resp, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapS3Error("HeadObject", bucket, key, err)
	}

	return &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(resp.ContentLength),
		ContentType:  aws.ToString(resp.ContentType),
		ETag:         cleanETag(aws.ToString(resp.ETag)),
		LastModified: aws.ToTime(resp.LastModified),
		StorageClass: string(resp.StorageClass),
		Metadata:     resp.Metadata,
	}, nil
}
