package awsutil

import (
	"context"
	"testing"
)

func TestLoadStaticCredentials(t *testing.T) {
	cfg, err := Load(context.Background(), "", "AKIDEXAMPLE", "secret")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Region != DefaultRegion {
		t.Errorf("region = %q, want %q", cfg.Region, DefaultRegion)
	}
	creds, err := cfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if creds.AccessKeyID != "AKIDEXAMPLE" {
		t.Errorf("access key = %q", creds.AccessKeyID)
	}
}
