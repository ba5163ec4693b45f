package stations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig locates the station bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// Store reads station objects named "<device_id>.json" from a bucket. It
// implements domain.StationLookup.
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewStore creates a MinIO client for cfg. No request is made until the
// first lookup.
func NewStore(cfg MinIOConfig, logger *slog.Logger) (*Store, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client for %s: %w", cfg.Endpoint, err)
	}
	return &Store{client: client, bucket: cfg.Bucket, logger: logger.With("component", "station-store", "bucket", cfg.Bucket)}, nil
}

func objectName(deviceID uint16) string {
	return strconv.Itoa(int(deviceID)) + ".json"
}

func (s *Store) LookupStation(ctx context.Context, deviceID uint16) (domain.Station, error) {
	st, err := s.fetch(ctx, objectName(deviceID))
	if err != nil {
		return domain.Station{}, fmt.Errorf("device %d: %w", deviceID, err)
	}
	return st, nil
}

func (s *Store) fetch(ctx context.Context, name string) (domain.Station, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return domain.Station{}, classify(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return domain.Station{}, classify(err)
	}
	var st domain.Station
	if err := json.Unmarshal(data, &st); err != nil {
		return domain.Station{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return st, nil
}

// classify maps missing objects to ErrNotFound.
func classify(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %s", ErrNotFound, err.Error())
	}
	return fmt.Errorf("get station object: %w", err)
}

// LoadAll reads every station object in the bucket into a Registry.
// Objects that fail to parse are skipped and logged.
func (s *Store) LoadAll(ctx context.Context) (*Registry, error) {
	reg := NewRegistry(nil)
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list station objects: %w", info.Err)
		}
		if !strings.HasSuffix(info.Key, ".json") {
			continue
		}
		st, err := s.fetch(ctx, info.Key)
		if err != nil {
			s.logger.Warn("skipping station object", "key", info.Key, "error", err)
			continue
		}
		reg.Put(st)
	}
	s.logger.Info("stations loaded", "count", reg.Len())
	return reg, nil
}

// Upload creates the bucket if needed and writes one object per station.
func (s *Store) Upload(ctx context.Context, stations []domain.Station) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	for _, st := range stations {
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("serialize station %d: %w", st.DeviceID, err)
		}
		_, err = s.client.PutObject(ctx, s.bucket, objectName(st.DeviceID), bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: "application/json"})
		if err != nil {
			return fmt.Errorf("put station %d: %w", st.DeviceID, err)
		}
	}
	return nil
}
