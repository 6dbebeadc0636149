// Package database opens PostgreSQL connection pools for the postgres store.
package database
