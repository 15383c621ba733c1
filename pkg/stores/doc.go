// Package stores persists the translation history ledger in SQLite.
//
// Every run of translate or watch may be recorded with the digests of its
// source and output. watch uses LastSuccessful to skip regeneration when a
// saved file did not actually change. Migrations are embedded and applied
// with golang-migrate.
package stores
