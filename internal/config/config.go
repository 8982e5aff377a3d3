// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/api/resource"
)

// Config provides getters for working with the config
type Config struct {
	logger log.Logger
}

// Init initializes the Config struct
func Init(logger log.Logger) (*Config, error) {
	c := &Config{logger: logger}
	return c, nil
}

// runtimeConfig defines the config variables, validation, and viper config
type runtimeConfig struct {
	Environment   string `viper:"environment" envkey:"ENVIRONMENT" default:"development" description:"Environment (development|production|[string])"`
	InstanceID    string `viper:"instance_id" validate:"omitempty,puidv7" envkey:"INSTANCE_ID" default:"" description:"Random puidv7 of this instance, recorded in archive metadata"`
	Verbose       bool   `viper:"verbose" envkey:"ZARC_DEBUG" default:"false" description:"Enable verbose output"`
	DataDir       string `viper:"data_dir" validate:"omitempty,dirpath" envkey:"ZARC_DATA_DIR" default:"" description:"(Optional) Path to directory for local archives"`
	Codec         string `viper:"codec" validate:"oneof=none deflate zstd" envkey:"ZARC_CODEC" default:"zstd" description:"Block compression codec (none|deflate|zstd)"`
	CompressLevel int    `viper:"compress_level" envkey:"ZARC_COMPRESS_LEVEL" default:"0" description:"Compression level (0 = codec default)"`
	Branching     int    `viper:"branching" validate:"min=2" envkey:"ZARC_BRANCHING" default:"1024" description:"Keys per index block"`
	BlockSize     string `viper:"block_size" validate:"quantity" envkey:"ZARC_BLOCK_SIZE" default:"128Ki" description:"Approximate uncompressed data block size (e.g. 64Ki, 1Mi)"`
	Parallelism   int    `viper:"parallelism" validate:"min=0" envkey:"ZARC_PARALLELISM" default:"0" description:"Compression workers (0 = one per CPU)"`
	// S3 Configuration
	S3BucketName      string `viper:"s3_bucket_name" envkey:"ZARC_S3_BUCKET_NAME" default:"" description:"S3 bucket name (required for push/pull)"`
	S3KeyPrefix       string `viper:"s3_key_prefix" envkey:"ZARC_S3_KEY_PREFIX" default:"" description:"S3 object key prefix"`
	S3Region          string `viper:"s3_region" envkey:"AWS_DEFAULT_REGION" default:"us-east-1" description:"AWS region for S3 bucket"`
	S3Endpoint        string `viper:"s3_endpoint" envkey:"AWS_ENDPOINT_URL" default:"" description:"Custom S3 endpoint URL (for MinIO, etc.)"`
	S3AccessKeyID     string `viper:"s3_access_key_id" envkey:"AWS_ACCESS_KEY_ID" default:"" description:"AWS access key ID (optional, prefer IAM roles)"`
	S3SecretAccessKey string `viper:"s3_secret_access_key" envkey:"AWS_SECRET_ACCESS_KEY" default:"" description:"AWS secret access key (optional, prefer IAM roles)"`
	S3SessionToken    string `viper:"s3_session_token" envkey:"AWS_SESSION_TOKEN" default:"" description:"AWS session token for temporary credentials"`
	S3RoleArn         string `viper:"s3_role_arn" envkey:"ZARC_S3_ROLE_ARN" default:"" description:"IAM role ARN to assume for S3 access"`
	S3RoleSessionName string `viper:"s3_role_session_name" envkey:"ZARC_S3_ROLE_SESSION_NAME" default:"zarc-session" description:"Session name when assuming IAM role"`
	S3ForcePathStyle  bool   `viper:"s3_force_path_style" envkey:"ZARC_S3_FORCE_PATH_STYLE" default:"false" description:"Use path-style S3 addressing (required for MinIO)"`
	S3StorageClass    string `viper:"s3_storage_class" envkey:"ZARC_S3_STORAGE_CLASS" default:"STANDARD" description:"S3 storage class (STANDARD, STANDARD_IA, GLACIER, etc.)"`
	S3Encryption      string `viper:"s3_encryption" envkey:"ZARC_S3_ENCRYPTION" default:"AES256" description:"S3 server-side encryption (AES256 or aws:kms)"`
	S3KMSKeyID        string `viper:"s3_kms_key_id" envkey:"ZARC_S3_KMS_KEY_ID" default:"" description:"KMS key ID for S3 encryption (when using aws:kms)"`
}

// Environment returns the current environment (development, production, etc)
func (c *Config) Environment() string {
	return viper.GetString("environment")
}

// InstanceID returns the ID of the current instance
func (c *Config) InstanceID() string {
	return viper.GetString("instance_id")
}

// Verbose returns whether verbose mode is enabled
func (c *Config) Verbose() bool {
	return viper.GetBool("verbose")
}

// DataDir returns the directory path for local archives
func (c *Config) DataDir() string {
	dir := viper.GetString("data_dir")
	if strings.HasPrefix(dir, "./") {
		dir = strings.TrimPrefix(dir, "./")
		currentDir, _ := filepath.Abs(".")
		dir = filepath.Join(currentDir, dir)
		viper.Set("data_dir", dir)
	}
	return dir
}

// Codec returns the block compression codec name
func (c *Config) Codec() string {
	return viper.GetString("codec")
}

// CompressLevel returns the compression level (0 = codec default)
func (c *Config) CompressLevel() int {
	return viper.GetInt("compress_level")
}

// Branching returns the number of keys per index block
func (c *Config) Branching() int {
	return viper.GetInt("branching")
}

// BlockSize returns the approximate uncompressed data block size in
// bytes, parsed from a Kubernetes-style quantity like "128Ki" or "1Mi"
func (c *Config) BlockSize() (int, error) {
	raw := viper.GetString("block_size")
	quantity, err := resource.ParseQuantity(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid block size %q: %w", raw, err)
	}
	size := quantity.Value()
	if size < 1 {
		return 0, fmt.Errorf("block size %q must be at least one byte", raw)
	}
	return int(size), nil
}

// Parallelism returns the number of compression workers (0 = one per CPU)
func (c *Config) Parallelism() int {
	return viper.GetInt("parallelism")
}

// S3BucketName returns the S3 bucket name
func (c *Config) S3BucketName() string {
	return viper.GetString("s3_bucket_name")
}

// S3KeyPrefix returns the S3 object key prefix
func (c *Config) S3KeyPrefix() string {
	return viper.GetString("s3_key_prefix")
}

// S3Region returns the AWS region for S3 bucket
func (c *Config) S3Region() string {
	return viper.GetString("s3_region")
}

// S3Endpoint returns the custom S3 endpoint URL
func (c *Config) S3Endpoint() string {
	return viper.GetString("s3_endpoint")
}

// S3AccessKeyID returns the AWS access key ID
func (c *Config) S3AccessKeyID() string {
	return viper.GetString("s3_access_key_id")
}

// S3SecretAccessKey returns the AWS secret access key
func (c *Config) S3SecretAccessKey() string {
	return viper.GetString("s3_secret_access_key")
}

// S3SessionToken returns the AWS session token for temporary credentials
func (c *Config) S3SessionToken() string {
	return viper.GetString("s3_session_token")
}

// S3RoleArn returns the IAM role ARN to assume for S3 access
func (c *Config) S3RoleArn() string {
	return viper.GetString("s3_role_arn")
}

// S3RoleSessionName returns the session name when assuming IAM role
func (c *Config) S3RoleSessionName() string {
	return viper.GetString("s3_role_session_name")
}

// S3ForcePathStyle returns whether to use path-style S3 addressing
func (c *Config) S3ForcePathStyle() bool {
	return viper.GetBool("s3_force_path_style")
}

// S3StorageClass returns the S3 storage class
func (c *Config) S3StorageClass() string {
	return viper.GetString("s3_storage_class")
}

// S3Encryption returns the S3 server-side encryption type
func (c *Config) S3Encryption() string {
	return viper.GetString("s3_encryption")
}

// S3KMSKeyID returns the KMS key ID for S3 encryption
func (c *Config) S3KMSKeyID() string {
	return viper.GetString("s3_kms_key_id")
}
