// Package media validates and downsizes photos ahead of upload.
package media
