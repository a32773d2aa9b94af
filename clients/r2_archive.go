package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"game-match-system/config"
	"game-match-system/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2Archive stores final tournament standings in an S3-compatible bucket.
type R2Archive struct {
	client objectPutter
	bucket string
}

// NewR2Archive builds the S3 client for a Cloudflare R2 (or any S3) endpoint.
func NewR2Archive(ctx context.Context, cfg config.ArchiveConfig) (*R2Archive, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &R2Archive{client: client, bucket: cfg.Bucket}, nil
}

type standingsSnapshot struct {
	TournamentID string            `json:"tournament_id"`
	Name         string            `json:"name"`
	Format       string            `json:"format"`
	Status       string            `json:"status"`
	EndTime      *time.Time        `json:"end_time,omitempty"`
	Standings    []models.Standing `json:"standings"`
}

// StandingsKey is the object key a tournament's final standings are written to.
func StandingsKey(t *models.Tournament) string {
	s := t.Slug
	if s == "" {
		s = slug.Make(t.Name)
	}
	return fmt.Sprintf("tournaments/%s-%s/standings.json", s, t.ID)
}

func (a *R2Archive) ArchiveStandings(ctx context.Context, t *models.Tournament, standings []models.Standing) Delivery {
	body, err := json.Marshal(standingsSnapshot{
		TournamentID: t.ID,
		Name:         t.Name,
		Format:       string(t.Format),
		Status:       string(t.Status),
		EndTime:      t.EndTime,
		Standings:    standings,
	})
	if err != nil {
		return delivered(TargetArchive, err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(StandingsKey(t)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return delivered(TargetArchive, fmt.Errorf("failed to upload standings: %w", err))
	}
	return delivered(TargetArchive, nil)
}

// NopArchive is used when no bucket is configured.
type NopArchive struct{}

func (NopArchive) ArchiveStandings(context.Context, *models.Tournament, []models.Standing) Delivery {
	return Delivery{Target: TargetArchive}
}
