// Package materials resolves material names from plans into physical
// properties. Resolution supports exact, normalized, and fuzzy substring
// matching; unknown names fall back to a named default so enrichment never
// fails outright on an unrecognized material.
package materials
