package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config holds S3 checkpoint store parameters.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // optional; set for MinIO and other S3-compatible servers
	PathStyle bool
}

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps one object per checkpoint at <prefix>/<run>/<tick>.ckpt.
type S3Store struct {
	cfg    S3Config
	client S3API
}

// NewS3Store creates a store that builds its client from the default AWS
// credential chain on Init.
func NewS3Store(cfg S3Config) *S3Store {
	return &S3Store{cfg: cfg}
}

// NewS3StoreWithClient creates a store over an existing client.
func NewS3StoreWithClient(cfg S3Config, client S3API) *S3Store {
	return &S3Store{cfg: cfg, client: client}
}

func (s *S3Store) Init(ctx context.Context) error {
	if s.cfg.Bucket == "" {
		return errors.New("s3 bucket is required")
	}
	if s.client != nil {
		return nil
	}
	region := s.cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = s.cfg.PathStyle
		if s.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
		}
	})
	return nil
}

func (s *S3Store) runPrefix(run string) string {
	return path.Join(s.cfg.Prefix, run) + "/"
}

func (s *S3Store) key(run string, tick int32) string {
	return s.runPrefix(run) + tickKey(tick) + ".ckpt"
}

func (s *S3Store) Save(ctx context.Context, cp Checkpoint) error {
	if s.client == nil {
		return ErrNotInitialized
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(s.key(cp.Run, cp.Tick)),
		Body:        bytes.NewReader(encodeRecord(cp)),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("put checkpoint %s/%d: %w", cp.Run, cp.Tick, err)
	}
	return nil
}

func (s *S3Store) Load(ctx context.Context, run string, tick int32) (Checkpoint, bool, error) {
	if s.client == nil {
		return Checkpoint{}, false, ErrNotInitialized
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(run, tick)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("get checkpoint %s/%d: %w", run, tick, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read checkpoint %s/%d: %w", run, tick, err)
	}
	cp, err := decodeRecord(run, tick, data)
	if err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

func (s *S3Store) Latest(ctx context.Context, run string) (Checkpoint, bool, error) {
	ticks, err := s.List(ctx, run)
	if err != nil || len(ticks) == 0 {
		return Checkpoint{}, false, err
	}
	return s.Load(ctx, run, ticks[len(ticks)-1])
}

func (s *S3Store) List(ctx context.Context, run string) ([]int32, error) {
	if s.client == nil {
		return nil, ErrNotInitialized
	}
	prefix := s.runPrefix(run)
	var (
		ticks []int32
		token *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list checkpoints %s: %w", run, err)
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if !strings.HasSuffix(name, ".ckpt") || strings.Contains(name, "/") {
				continue
			}
			tick, err := parseTick([]byte(strings.TrimSuffix(name, ".ckpt")))
			if err != nil {
				return nil, err
			}
			ticks = append(ticks, tick)
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	slices.Sort(ticks)
	return ticks, nil
}

func (s *S3Store) Close() error {
	return nil
}
