package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// ArchiveMetadata describes a single archived store upload.
type ArchiveMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes one database file within an archive.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// SnapshotArchiver uploads the risk/marketdata SQLite stores to an
// S3-compatible bucket (e.g. Cloudflare R2) after a trading-day
// PortfolioSnapshot write. It is an outbound ops concern, not a network
// endpoint: the batch core never listens, it only pushes.
type SnapshotArchiver struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	dataDir  string
	log      zerolog.Logger
}

// NewSnapshotArchiver builds an archiver from static credentials and an
// optional custom endpoint (for R2 compatibility). Region "auto" is the
// conventional R2 value.
func NewSnapshotArchiver(ctx context.Context, bucket, prefix, endpoint, region, accessKeyID, secretAccessKey, dataDir string, log zerolog.Logger) (*SnapshotArchiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	return &SnapshotArchiver{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		dataDir:  dataDir,
		log:      log.With().Str("service", "snapshot_archiver").Logger(),
	}, nil
}

// ArchiveStores tars, gzips, and uploads the named database files under
// dataDir as a single dated object. dbNames are bare names (e.g. "risk",
// "marketdata"); the ".db" extension is appended to find each file.
func (a *SnapshotArchiver) ArchiveStores(ctx context.Context, calculationDate string, dbNames []string) error {
	a.log.Info().Str("calculation_date", calculationDate).Msg("starting snapshot archive")
	startTime := time.Now()

	stagingDir, err := os.MkdirTemp(a.dataDir, "archive-staging-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := ArchiveMetadata{Timestamp: time.Now().UTC()}
	for _, dbName := range dbNames {
		srcPath := filepath.Join(a.dataDir, dbName+".db")
		info, err := os.Stat(srcPath)
		if err != nil {
			a.log.Warn().Str("database", dbName).Err(err).Msg("database file not found, skipping from archive")
			continue
		}

		checksum, err := checksumFile(srcPath)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", dbName, err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      dbName,
			Filename:  dbName + ".db",
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	archiveName := fmt.Sprintf("%s.tar.gz", calculationDate)
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, a.dataDir, dbNames, metadata); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	key := fmt.Sprintf("%s/%s", a.prefix, archiveName)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   archiveFile,
	})
	if err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	a.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("key", key).
		Msg("snapshot archive uploaded")

	return nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

func createArchive(archivePath, sourceDir string, dbNames []string, metadata ArchiveMetadata) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	metadataBytes, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := addBytesToArchive(tarWriter, metadataBytes, "archive-metadata.json"); err != nil {
		return err
	}

	for _, dbName := range dbNames {
		filePath := filepath.Join(sourceDir, dbName+".db")
		if _, err := os.Stat(filePath); err != nil {
			continue
		}
		if err := addFileToArchive(tarWriter, filePath, dbName+".db"); err != nil {
			return fmt.Errorf("add %s to archive: %w", dbName, err)
		}
	}

	return nil
}

func addBytesToArchive(tarWriter *tar.Writer, data []byte, nameInArchive string) error {
	header := &tar.Header{
		Name:    nameInArchive,
		Size:    int64(len(data)),
		Mode:    0644,
		ModTime: time.Now(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err := tarWriter.Write(data)
	return err
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}
