package provider

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"dupsweep/internal/config"
	"dupsweep/internal/sweep"
)

// DefaultS3TrashPrefix is where soft-deleted objects are moved when no
// trash prefix is configured.
const DefaultS3TrashPrefix = ".dupsweep-trash/"

// s3API is the subset of *s3.Client used by S3Provider.
type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObjectAcl(ctx context.Context, in *s3.GetObjectAclInput, optFns ...func(*s3.Options)) (*s3.GetObjectAclOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

// S3Provider exposes the objects of a bucket (optionally under a prefix) as
// a sweep.Provider. External ids are object keys and content signatures are
// ETags. S3 has no trash, so soft deletion copies the object under the
// trash prefix and then deletes the original. Ownership is the canonical
// user id from the object ACL.
type S3Provider struct {
	name        string
	client      s3API
	bucket      string
	prefix      string
	trashPrefix string
	identity    string
	pageSize    int32
}

// NewS3Provider creates a provider from an already configured client.
// identity, when non-empty, replaces the ListBuckets owner lookup.
func NewS3Provider(name string, client s3API, bucket, prefix, trashPrefix, identity string, pageSize int) *S3Provider {
	if trashPrefix == "" {
		trashPrefix = DefaultS3TrashPrefix
	}
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}
	return &S3Provider{
		name:        name,
		client:      client,
		bucket:      bucket,
		prefix:      prefix,
		trashPrefix: trashPrefix,
		identity:    identity,
		pageSize:    int32(pageSize),
	}
}

// NewS3ProviderFromConfig builds the S3 client from the source config.
// Static keys are used when both are set; otherwise the default AWS
// credential chain applies.
func NewS3ProviderFromConfig(ctx context.Context, cfg config.SourceConfig) (*S3Provider, error) {
	client, err := newS3Client(ctx, cfg.S3Region, cfg.S3Endpoint, cfg.S3AccessKeyID, cfg.S3SecretAccessKey)
	if err != nil {
		return nil, err
	}
	return NewS3Provider(cfg.Name, client, cfg.S3Bucket, cfg.S3Prefix, cfg.S3TrashPrefix, cfg.S3Identity, cfg.PageSize), nil
}

func newS3Client(ctx context.Context, region, endpoint, accessKeyID, secretAccessKey string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Name returns the configured source name.
func (p *S3Provider) Name() string {
	return p.name
}

// List returns one ListObjectsV2 page. Objects under the trash prefix and
// zero-byte "directory" placeholders are left out.
func (p *S3Provider) List(ctx context.Context, pageToken string) (*sweep.ListPage, error) {
	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		MaxKeys: aws.Int32(p.pageSize),
	}
	if p.prefix != "" {
		in.Prefix = aws.String(p.prefix)
	}
	if pageToken != "" {
		in.ContinuationToken = aws.String(pageToken)
	}

	out, err := p.client.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("listing s3://%s/%s: %w", p.bucket, p.prefix, err)
	}

	page := &sweep.ListPage{}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if strings.HasPrefix(key, p.trashPrefix) || strings.HasSuffix(key, "/") {
			continue
		}
		page.Items = append(page.Items, sweep.ListedItem{
			ExternalID:       key,
			Name:             path.Base(key),
			SizeBytes:        aws.ToInt64(obj.Size),
			MimeType:         mime.TypeByExtension(path.Ext(key)),
			ModifiedAt:       aws.ToTime(obj.LastModified).UTC(),
			ContentSignature: strings.Trim(aws.ToString(obj.ETag), `"`),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextPageToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// Status reports an object as live when its key exists and as trashed when
// only the trash copy does.
func (p *S3Provider) Status(ctx context.Context, externalID string) (*sweep.ItemStatus, error) {
	exists, err := p.exists(ctx, externalID)
	if err != nil {
		return nil, err
	}
	key := externalID
	trashed := false
	if !exists {
		key = p.trashPrefix + externalID
		inTrash, err := p.exists(ctx, key)
		if err != nil {
			return nil, err
		}
		if !inTrash {
			return nil, fmt.Errorf("object not found: s3://%s/%s", p.bucket, externalID)
		}
		trashed = true
	}

	acl, err := p.client.GetObjectAcl(ctx, &s3.GetObjectAclInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("reading acl of %s: %w", key, err)
	}
	owner := ""
	if acl.Owner != nil {
		owner = aws.ToString(acl.Owner.ID)
	}
	return &sweep.ItemStatus{IsTrashed: trashed, Owner: owner}, nil
}

// SoftDelete copies the object under the trash prefix, then deletes it.
// A failed copy leaves the original untouched.
func (p *S3Provider) SoftDelete(ctx context.Context, externalID string) error {
	trashKey := p.trashPrefix + externalID
	_, err := p.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(p.bucket),
		Key:        aws.String(trashKey),
		CopySource: aws.String(url.PathEscape(p.bucket + "/" + externalID)),
	})
	if err != nil {
		return fmt.Errorf("copying %s to trash: %w", externalID, err)
	}

	_, err = p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(externalID),
	})
	if err != nil {
		return fmt.Errorf("deleting %s after trash copy: %w", externalID, err)
	}
	return nil
}

// Identity returns the configured identity or the canonical id of the
// account owning the credentials.
func (p *S3Provider) Identity(ctx context.Context) (string, error) {
	if p.identity != "" {
		return p.identity, nil
	}
	out, err := p.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return "", fmt.Errorf("looking up account owner: %w", err)
	}
	if out.Owner == nil || aws.ToString(out.Owner.ID) == "" {
		return "", fmt.Errorf("account owner not reported by s3")
	}
	return aws.ToString(out.Owner.ID), nil
}

func (p *S3Provider) exists(ctx context.Context, key string) (bool, error) {
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", key, err)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}

// Compile-time check that S3Provider implements sweep.Provider interface
var _ sweep.Provider = (*S3Provider)(nil)
