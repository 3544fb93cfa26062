package main

import (
	"log"
	"os"
	"strconv"
	"strings"

	"fieldnotes.ai/internal/persistence/r2s3"
)

// buildArchiveUploader returns nil unless OBS_ARCHIVE_ENABLED is set.
func buildArchiveUploader(dataDir string, logger *log.Logger) (*r2s3.Uploader, error) {
	if !envBool("OBS_ARCHIVE_ENABLED", false) {
		return nil, nil
	}
	client, err := r2s3.New(r2s3.Config{
		Endpoint:        os.Getenv("OBS_ARCHIVE_ENDPOINT"),
		Bucket:          os.Getenv("OBS_ARCHIVE_BUCKET"),
		Region:          os.Getenv("OBS_ARCHIVE_REGION"),
		AccessKeyID:     os.Getenv("OBS_ARCHIVE_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("OBS_ARCHIVE_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSpace(os.Getenv("OBS_ARCHIVE_PREFIX"))
	queue := envInt("OBS_ARCHIVE_QUEUE", 256)
	logger.Printf("archiving audit logs to bucket %s (prefix=%q)", os.Getenv("OBS_ARCHIVE_BUCKET"), prefix)
	return r2s3.NewUploader(client, dataDir, prefix, queue, logger), nil
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
