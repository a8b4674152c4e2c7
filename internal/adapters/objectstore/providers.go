package objectstore

import (
	"fmt"
	"sort"
	"strings"
)

// Default AWS S3 endpoints by region.
var awsEndpoints = map[string]string{
	"us-east-1":      "s3.amazonaws.com",
	"us-east-2":      "s3.us-east-2.amazonaws.com",
	"us-west-1":      "s3.us-west-1.amazonaws.com",
	"us-west-2":      "s3.us-west-2.amazonaws.com",
	"eu-west-1":      "s3.eu-west-1.amazonaws.com",
	"eu-west-2":      "s3.eu-west-2.amazonaws.com",
	"eu-west-3":      "s3.eu-west-3.amazonaws.com",
	"eu-central-1":   "s3.eu-central-1.amazonaws.com",
	"eu-north-1":     "s3.eu-north-1.amazonaws.com",
	"ap-northeast-1": "s3.ap-northeast-1.amazonaws.com",
	"ap-northeast-2": "s3.ap-northeast-2.amazonaws.com",
	"ap-southeast-1": "s3.ap-southeast-1.amazonaws.com",
	"ap-southeast-2": "s3.ap-southeast-2.amazonaws.com",
	"ap-south-1":     "s3.ap-south-1.amazonaws.com",
	"ca-central-1":   "s3.ca-central-1.amazonaws.com",
	"sa-east-1":      "s3.sa-east-1.amazonaws.com",
}

// AWSConfig holds AWS S3-specific configuration.
type AWSConfig struct {
	BucketName string
	AccessKey  string
	SecretKey  string
	Region     string // Default: us-east-1
}

// NewAWSConfig returns a Config for AWS S3, which uses virtual-host style
// URLs (bucket.s3.<region>.amazonaws.com).
func NewAWSConfig(config *AWSConfig) *Config {
	region := config.Region
	if region == "" {
		region = "us-east-1"
	}

	endpoint, ok := awsEndpoints[region]
	if !ok {
		endpoint = fmt.Sprintf("s3.%s.amazonaws.com", region)
	}

	return &Config{
		Endpoint:       "https://" + endpoint,
		BucketName:     config.BucketName,
		AccessKey:      config.AccessKey,
		SecretKey:      config.SecretKey,
		Region:         region,
		ForcePathStyle: false,
	}
}

// AWSEndpointForRegion returns the S3 endpoint for a given region.
func AWSEndpointForRegion(region string) (string, error) {
	endpoint, ok := awsEndpoints[region]
	if !ok {
		return "", fmt.Errorf("unknown AWS region: %s", region)
	}
	return endpoint, nil
}

// SupportedAWSRegions returns the regions with a known endpoint, sorted.
func SupportedAWSRegions() []string {
	regions := make([]string, 0, len(awsEndpoints))
	for region := range awsEndpoints {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}

// MinIOConfig holds MinIO-specific configuration.
type MinIOConfig struct {
	Endpoint   string // e.g. "localhost:9000" or "https://minio.example.com"
	BucketName string
	AccessKey  string
	SecretKey  string
	UseSSL     bool // used when Endpoint has no scheme
}

// NewMinIOConfig returns a Config for MinIO, which requires path-style URLs.
func NewMinIOConfig(config *MinIOConfig) (*Config, error) {
	endpoint, err := ParseEndpoint(config.Endpoint, config.UseSSL)
	if err != nil {
		return nil, err
	}
	return &Config{
		Endpoint:       endpoint,
		BucketName:     config.BucketName,
		AccessKey:      config.AccessKey,
		SecretKey:      config.SecretKey,
		Region:         "us-east-1", // MinIO ignores the region but signing needs one
		ForcePathStyle: true,
	}, nil
}

// ParseEndpoint adds a scheme to endpoint when it has none and drops a
// trailing slash.
func ParseEndpoint(endpoint string, useSSL bool) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if useSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	return strings.TrimSuffix(endpoint, "/"), nil
}

// R2Config holds Cloudflare R2-specific configuration.
type R2Config struct {
	AccountID  string
	BucketName string
	AccessKey  string
	SecretKey  string
}

// NewR2Config returns a Config for Cloudflare R2. The endpoint is
// https://<accountid>.r2.cloudflarestorage.com.
func NewR2Config(config *R2Config) (*Config, error) {
	if config.AccountID == "" {
		return nil, fmt.Errorf("R2 account id is required")
	}
	return &Config{
		Endpoint:       "https://" + R2EndpointForAccount(config.AccountID),
		BucketName:     config.BucketName,
		AccessKey:      config.AccessKey,
		SecretKey:      config.SecretKey,
		Region:         "auto",
		ForcePathStyle: false,
	}, nil
}

// R2EndpointForAccount returns the R2 endpoint host for a given account ID.
func R2EndpointForAccount(accountID string) string {
	return fmt.Sprintf("%s.r2.cloudflarestorage.com", accountID)
}
