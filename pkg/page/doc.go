// Package page implements the fixed-size Page row store and the
// content-addressed BlobStore that backs var-len columns too large to fit
// inline in a row.
package page
