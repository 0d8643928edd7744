// Package sandbox hosts the isolated preview document: parsing and
// sanitization of generated page content, a restricted script runtime
// whose failures feed the error buffer, and an ordered strategy chain
// for replacing page content in place.
package sandbox
