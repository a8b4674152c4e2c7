// Package objectstore provides a sync adapter that keeps one JSON object per
// record in an S3-compatible bucket (AWS S3, MinIO, Cloudflare R2).
package objectstore

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Config holds S3 connection configuration.
type Config struct {
	Endpoint       string // scheme://host[:port]
	BucketName     string
	AccessKey      string
	SecretKey      string
	Region         string
	ForcePathStyle bool // Use path-style URLs (minio, localstack)
}

// Client is a minimal S3 REST client signing requests with AWS Signature V4.
type Client struct {
	config     *Config
	httpClient *http.Client
	now        func() time.Time
}

// listBucketResult represents the S3 ListObjectsV2 response.
type listBucketResult struct {
	XMLName               xml.Name `xml:"ListBucketResult"`
	Name                  string   `xml:"Name"`
	Prefix                string   `xml:"Prefix"`
	IsTruncated           bool     `xml:"IsTruncated"`
	NextContinuationToken string   `xml:"NextContinuationToken"`
	Contents              []struct {
		Key          string `xml:"Key"`
		LastModified string `xml:"LastModified"`
		Size         int64  `xml:"Size"`
	} `xml:"Contents"`
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, truncateString(e.Body, 200))
}

// NewClient creates a new Client.
func NewClient(config *Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		now: time.Now,
	}
}

// Put uploads data under key.
func (c *Client) Put(ctx context.Context, key string, data []byte) error {
	req, err := c.newRequest(ctx, http.MethodPut, key, nil, data)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("upload", resp)
	}
	return nil
}

// Get downloads the object under key. found is false when it does not exist.
func (c *Client) Get(ctx context.Context, key string) (data []byte, found bool, err error) {
	req, err := c.newRequest(ctx, http.MethodGet, key, nil, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, statusError("download", resp)
	}

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, true, nil
}

// Delete removes the object under key. Deleting a missing object succeeds.
func (c *Client) Delete(ctx context.Context, key string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, key, nil, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return statusError("delete", resp)
	}
}

// List returns every key starting with prefix, following continuation tokens.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	token := ""
	for {
		q := url.Values{}
		q.Set("list-type", "2")
		q.Set("prefix", prefix)
		if token != "" {
			q.Set("continuation-token", token)
		}

		req, err := c.newRequest(ctx, http.MethodGet, "", q, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("list request failed: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			err := statusError("list", resp)
			resp.Body.Close()
			return nil, err
		}

		var result listBucketResult
		err = xml.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}

		for _, content := range result.Contents {
			keys = append(keys, content.Key)
		}
		if !result.IsTruncated || result.NextContinuationToken == "" {
			return keys, nil
		}
		token = result.NextContinuationToken
	}
}

// TestConnection tests the connection by listing the bucket.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.List(ctx, "")
	return err
}

// objectURL builds the request URL for key; an empty key addresses the bucket.
func (c *Client) objectURL(key string, query url.Values) (*url.URL, error) {
	u, err := url.Parse(c.config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", c.config.Endpoint, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme and host are required", c.config.Endpoint)
	}

	base := strings.TrimSuffix(u.Path, "/")
	if c.config.ForcePathStyle {
		// Path-style: scheme://endpoint/bucket/key
		u.Path = base + "/" + c.config.BucketName + "/" + key
	} else {
		// Virtual-host-style: scheme://bucket.endpoint/key
		u.Host = c.config.BucketName + "." + u.Host
		u.Path = base + "/" + key
	}
	u.RawPath = ""
	u.RawQuery = canonicalQueryString(query)
	return u, nil
}

// newRequest creates a signed request.
func (c *Client) newRequest(ctx context.Context, method, key string, query url.Values, body []byte) (*http.Request, error) {
	u, err := c.objectURL(key, query)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.ContentLength = int64(len(body))
	}

	c.sign(req, hex.EncodeToString(hashSHA256(body)))
	return req, nil
}

// sign adds AWS Signature V4 headers to req.
func (c *Client) sign(req *http.Request, payloadHash string) {
	timestamp := c.now().UTC()
	amzDate := timestamp.Format("20060102T150405Z")
	dateStamp := amzDate[:8]

	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)

	canonicalHeaders := fmt.Sprintf("host:%s\nx-amz-content-sha256:%s\nx-amz-date:%s\n",
		req.URL.Host, payloadHash, amzDate)
	signedHeaders := "host;x-amz-content-sha256;x-amz-date"

	canonicalRequest := strings.Join([]string{
		req.Method,
		req.URL.EscapedPath(),
		req.URL.RawQuery,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := fmt.Sprintf("%s/%s/s3/aws4_request", dateStamp, c.config.Region)
	algorithm := "AWS4-HMAC-SHA256"
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hex.EncodeToString(hashSHA256([]byte(canonicalRequest))),
	}, "\n")

	kDate := hmacSHA256([]byte("AWS4"+c.config.SecretKey), dateStamp)
	kRegion := hmacSHA256(kDate, c.config.Region)
	kService := hmacSHA256(kRegion, "s3")
	kSigning := hmacSHA256(kService, "aws4_request")
	signature := hex.EncodeToString(hmacSHA256(kSigning, stringToSign))

	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, c.config.AccessKey, scope, signedHeaders, signature))
}

// canonicalQueryString sorts parameters by name and percent-encodes them the
// way Signature V4 expects.
func canonicalQueryString(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, uriEncode(k)+"="+uriEncode(v))
		}
	}
	return strings.Join(parts, "&")
}

func uriEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
}

// truncateString shortens s to at most n bytes.
func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// hmacSHA256 calculates HMAC-SHA256.
func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// hashSHA256 calculates SHA256 hash.
func hashSHA256(data []byte) []byte {
	h := sha256.New()
	h.Write(data)
	return h.Sum(nil)
}
