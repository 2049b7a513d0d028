// Package rules manages the lifecycle of automation rules: qualification
// rules per campaign, conditions per messaging step and escalation rules per
// client.
//
// Saves are upserts: a rule without an id is inserted and receives a new id;
// a rule with an id fully replaces the stored record. Deletes are hard and
// last write wins. The service validates rules before they reach storage.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package rules
