// Package ingest implements the Zapier/webhook import endpoint. Requests are
// authenticated by API key, HMAC signature or bearer JWT, rate limited per
// client IP, schema validated, normalized and upserted. Imported leads are
// handed to the automation engine as form submissions. Accepted payloads can
// be archived to S3.
package ingest
