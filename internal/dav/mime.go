package dav

import (
	"path"
	"strings"
)

// DirectoryContentType is the MIME type recorded on collection marker
// objects and reported for collections in listings.
const DirectoryContentType = "httpd/unix-directory"

const defaultContentType = "application/octet-stream"

// mimeTypes maps lowercase filename extensions to MIME types.
var mimeTypes = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".csv":  "text/csv",
	".js":   "application/javascript",
	".json": "application/json",
	".xml":  "application/xml",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".ico":  "image/x-icon",
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

// resolveContentType maps a key's filename extension to a MIME type, falling
// back to application/octet-stream for unknown or missing extensions.
func resolveContentType(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if mt, ok := mimeTypes[ext]; ok {
		return mt
	}
	return defaultContentType
}
