// Package ports defines the interfaces (ports) that storage and collaborator
// adapters must implement. Services depend only on these, so the SQL and
// in-memory drivers are interchangeable and services can be tested without a
// database.
package ports
