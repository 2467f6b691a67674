package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"cobrapyme/morosidad/internal/config"
)

// IImportArchive stores raw uploaded import files so a disputed
// reconciliation can be traced back to the exact bytes it came from.
type IImportArchive interface {
	ArchiveImportFile(ctx context.Context, ownerID, filename string, data []byte) (string, error)
}

// s3ImportArchive implements IImportArchive on S3.
type s3ImportArchive struct {
	cfg      *config.Config
	s3Client *s3.Client
}

// NewS3ImportArchive creates the S3-backed archive. When no bucket is
// configured it returns a no-op archive, so local setups run without AWS.
func NewS3ImportArchive(cfg *config.Config) (IImportArchive, error) {
	if cfg.AwsS3Bucket == "" {
		return &noopImportArchive{}, nil
	}

	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"", // session token
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &s3ImportArchive{
		cfg:      cfg,
		s3Client: s3.NewFromConfig(awsCfg),
	}, nil
}

// ArchiveImportFile uploads the file under a key namespaced by owner and
// upload date, and returns the object key.
func (s *s3ImportArchive) ArchiveImportFile(ctx context.Context, ownerID, filename string, data []byte) (string, error) {
	objectKey := fmt.Sprintf("imports/%s/%s/%s_%s",
		ownerID, time.Now().UTC().Format("2006-01-02"), uuid.NewString(), filename)

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive import file to key %s: %w", objectKey, err)
	}
	return objectKey, nil
}

type noopImportArchive struct{}

func (n *noopImportArchive) ArchiveImportFile(ctx context.Context, ownerID, filename string, data []byte) (string, error) {
	return "", nil
}
