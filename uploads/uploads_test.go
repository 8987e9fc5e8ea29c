package uploads

import (
	"context"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Endpoint:  "minio.internal:9000",
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "uploads",
	}
}

func TestConfigValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint"},
		{"endpoint with scheme", func(c *Config) { c.Endpoint = "https://minio:9000" }, "scheme"},
		{"missing access key", func(c *Config) { c.AccessKey = " " }, "access key"},
		{"missing secret key", func(c *Config) { c.SecretKey = "" }, "secret key"},
		{"missing bucket", func(c *Config) { c.Bucket = "" }, "bucket"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestNewMinioStoreRejectsInvalidConfig(t *testing.T) {
	if _, err := NewMinioStore(Config{}); err == nil {
		t.Fatal("empty config must fail")
	}
}

func TestNewMinioStoreWithClientRequiresClient(t *testing.T) {
	if _, err := NewMinioStoreWithClient(nil, "bucket", time.Minute); err == nil {
		t.Fatal("nil client must fail")
	}
}

func TestInitiatorFunc(t *testing.T) {
	var got Request
	init := InitiatorFunc(func(_ context.Context, req Request) (Grant, error) {
		got = req
		return Grant{FileID: "f1", UploadURL: "https://example/put"}, nil
	})

	grant, err := init.InitiateUpload(context.Background(), Request{
		FileName:       "report.pdf",
		OrganizationID: "org-1",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if grant.FileID != "f1" || grant.UploadURL == "" {
		t.Fatalf("grant not passed through: %+v", grant)
	}
	if got.FileName != "report.pdf" || got.OrganizationID != "org-1" {
		t.Fatalf("request not passed through: %+v", got)
	}
}
