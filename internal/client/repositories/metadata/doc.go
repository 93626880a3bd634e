// Package metadata is the local key/value table backing persistent client
// state. Values are opaque bytes; the token storage layers decide the
// encoding. SQLiteRepository works over a dbx.DBTX, so the same code runs
// against a *sql.DB or inside a transaction.
package metadata
